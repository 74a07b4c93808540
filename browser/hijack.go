package browser

import (
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains is a set of ad and tracking domains dropped when BlockAds is on.
var adDomains = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"googletagservices.com":  {},
	"adnxs.com":              {},
	"adsrvr.org":             {},
	"amazon-adsystem.com":    {},
	"criteo.com":             {},
	"scorecardresearch.com":  {},
	"hotjar.com":             {},
	"analytics.twitter.com":  {},
	"ads-twitter.com":        {},
	"static.ads-twitter.com": {},
	"ads-api.twitter.com":    {},
	"ads-api.x.com":          {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adDomains[host]; ok {
		return true
	}
	// Check parent domains (e.g., "pagead2.googlesyndication.com" → "googlesyndication.com").
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// listeners fans observed request URLs out to registered callbacks.
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(string)
}

func (l *listeners) add(fn func(string)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(string))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) emit(u string) {
	l.mu.Lock()
	fns := make([]func(string), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (l *listeners) clear() {
	l.mu.Lock()
	l.fns = nil
	l.mu.Unlock()
}

func (l *listeners) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// setupHijack installs the request interceptor that blocks the configured
// resource types and ad hosts, and reports every other request URL to obs.
//
// Network observation goes through the Fetch domain instead of
// EachEvent(NetworkResponseReceived): the two conflict on recent Chromium
// once a HijackRouter is mounted.
//
// The caller must Stop the returned router.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool, obs *listeners) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}

	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		reqURL := ctx.Request.URL().String()
		if blockAds {
			if u, err := url.Parse(reqURL); err == nil && isAdDomain(u.Hostname()) {
				ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
		obs.emit(reqURL)
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}
