package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// storageState is the on-disk session snapshot: every browser cookie plus
// the localStorage of the origin the page was on.
type storageState struct {
	Cookies      []*proto.NetworkCookie `json:"cookies"`
	Origin       string                 `json:"origin,omitempty"`
	LocalStorage map[string]string      `json:"local_storage,omitempty"`
}

const snapshotLocalStorageJS = `() => {
	try {
		const out = {};
		for (const key of Object.keys(localStorage)) {
			out[key] = localStorage.getItem(key);
		}
		return { origin: location.origin, items: out };
	} catch (e) {
		return { origin: "", items: {} };
	}
}`

// restoreLocalStorageJS runs before any page script on every new document
// and only touches storage on the snapshot's origin.
const restoreLocalStorageJS = `(origin, items) => {
	try {
		if (location.origin !== origin) return;
		for (const [k, v] of Object.entries(items || {})) {
			if (localStorage.getItem(k) === null) localStorage.setItem(k, v);
		}
	} catch (e) {}
}`

func (r *RodPage) StorageState(ctx context.Context) ([]byte, error) {
	p := r.page.Context(ctx)

	cookies, err := proto.NetworkGetAllCookies{}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", classify(err))
	}

	state := storageState{Cookies: cookies.Cookies}
	if res, err := p.Eval(snapshotLocalStorageJS); err == nil {
		state.Origin = res.Value.Get("origin").Str()
		items := res.Value.Get("items").Map()
		state.LocalStorage = make(map[string]string, len(items))
		for k, v := range items {
			state.LocalStorage[k] = v.Str()
		}
	}

	return json.Marshal(state)
}

func (r *RodPage) LoadStorageState(ctx context.Context, data []byte) error {
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode storage state: %w", err)
	}

	p := r.page.Context(ctx)

	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}
	if len(params) > 0 {
		if err := p.SetCookies(params); err != nil {
			return fmt.Errorf("set cookies: %w", classify(err))
		}
	}

	if state.Origin != "" && len(state.LocalStorage) > 0 {
		items, err := json.Marshal(state.LocalStorage)
		if err != nil {
			return err
		}
		originJSON, _ := json.Marshal(state.Origin)
		js := fmt.Sprintf("(%s)(%s, %s)", restoreLocalStorageJS, originJSON, items)
		if err := r.addScript(ctx, js); err != nil {
			return fmt.Errorf("install storage restore: %w", classify(err))
		}
	}
	return nil
}
