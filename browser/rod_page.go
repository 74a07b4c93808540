package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// RodPage implements Page on top of a go-rod tab.
type RodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
	obs    *listeners

	// cleanups run on Close in reverse order (removing injected scripts).
	cleanups []func() error
	release  func(*rod.Page)
	once     sync.Once
}

var _ Page = (*RodPage)(nil)

// Navigate loads url and waits for the DOM to settle (best-effort).
func (r *RodPage) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		if isContextErr(err) {
			return err
		}
		return fmt.Errorf("%w: navigate %s: %v", ErrPageUnreachable, url, err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if isContextErr(err) && ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", url,
			"error", err,
		)
	}
	return nil
}

func (r *RodPage) QueryAll(ctx context.Context, selector string) ([]Node, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify(err)
	}
	nodes := make([]Node, len(els))
	for i, el := range els {
		nodes[i] = rodNode{el: el}
	}
	return nodes, nil
}

func (r *RodPage) Evaluate(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := r.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.New(nil), classify(err)
	}
	return res.Value, nil
}

// ScrollBy dispatches a mouse-wheel scroll, the same input a user produces,
// so infinite-scroll observers fire.
func (r *RodPage) ScrollBy(ctx context.Context, dx, dy float64) error {
	return classify(r.page.Context(ctx).Mouse.Scroll(dx, dy, 0))
}

func (r *RodPage) Click(ctx context.Context, selector string) error {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return classify(err)
	}
	if len(els) == 0 {
		return fmt.Errorf("element %q not found", selector)
	}
	return classify(els.First().Click(proto.InputMouseButtonLeft, 1))
}

func (r *RodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := r.page.Context(waitCtx).Element(selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isContextErr(err) {
			return fmt.Errorf("%w: %s after %s", ErrSelectorTimeout, selector, timeout)
		}
		return classify(err)
	}
	return nil
}

func (r *RodPage) OnResponse(fn func(url string)) func() {
	return r.obs.add(fn)
}

// Close stops interception, drops every listener, removes injected scripts
// and hands the tab back. None of these steps carries a request context, so
// Close still works after the caller's deadline expired.
func (r *RodPage) Close() error {
	r.once.Do(func() {
		r.obs.clear()
		if r.router != nil {
			if err := r.router.Stop(); err != nil {
				slog.Debug("cleanup: failed to stop hijack router", "error", err)
			}
		}
		for i := len(r.cleanups) - 1; i >= 0; i-- {
			if err := r.cleanups[i](); err != nil {
				slog.Warn("cleanup: failed to remove injected script", "error", err)
			}
		}
		r.cleanups = nil
		r.release(r.page)
	})
	return nil
}

// addScript installs js for every new document and registers its removal
// with Close. Installation is bound to ctx; removal runs on the bare page,
// since a pooled tab must lose the script even when ctx has expired.
func (r *RodPage) addScript(ctx context.Context, js string) error {
	res, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: js}.Call(r.page.Context(ctx))
	if err != nil {
		return err
	}
	r.cleanups = append(r.cleanups, func() error {
		return proto.PageRemoveScriptToEvaluateOnNewDocument{Identifier: res.Identifier}.Call(r.page)
	})
	return nil
}

// rodNode adapts *rod.Element to Node.
type rodNode struct {
	el *rod.Element
}

func (n rodNode) HTML(ctx context.Context) (string, error) {
	s, err := n.el.Context(ctx).HTML()
	return s, classify(err)
}

func (n rodNode) Text(ctx context.Context) (string, error) {
	s, err := n.el.Context(ctx).Text()
	return s, classify(err)
}

func (n rodNode) Click(ctx context.Context) error {
	return classify(n.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

// detachedMarkers are CDP error messages meaning the target is gone.
var detachedMarkers = []string{
	"Target closed",
	"No target with given id",
	"Session with given id not found",
	"Inspected target navigated or closed",
	"websocket: close",
	"use of closed network connection",
}

// classify tags errors that mean the page is no longer usable with
// ErrPageUnreachable and passes everything else through.
func classify(err error) error {
	if err == nil || isContextErr(err) {
		return err
	}
	msg := err.Error()
	for _, m := range detachedMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrPageUnreachable, err)
		}
	}
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
