// Package browsertest provides in-memory browser.Page and browser.Opener
// implementations for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/use-agent/threadgrab/browser"
	"github.com/ysmood/gson"
)

// Node is a canned element.
type Node struct {
	OuterHTML string
	InnerText string
	HTMLErr   error
	ClickErr  error

	mu      sync.Mutex
	clicked int
}

var _ browser.Node = (*Node)(nil)

func (n *Node) HTML(context.Context) (string, error) { return n.OuterHTML, n.HTMLErr }
func (n *Node) Text(context.Context) (string, error) { return n.InnerText, n.HTMLErr }

func (n *Node) Click(context.Context) error {
	n.mu.Lock()
	n.clicked++
	n.mu.Unlock()
	return n.ClickErr
}

// Clicks reports how often Click was called.
func (n *Node) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicked
}

// Page is a scriptable browser.Page. Zero values behave like an empty page
// on which every selector is present.
type Page struct {
	// NavigateErr is returned by Navigate. OnNavigate, if set, runs first
	// and may emit network URLs.
	NavigateErr error
	OnNavigate  func(p *Page, url string)

	// Elements serves QueryAll by selector. QueryFunc overrides it.
	Elements  map[string][]browser.Node
	QueryFunc func(selector string) ([]browser.Node, error)

	// Missing lists selectors WaitForSelector reports as timed out.
	// WaitErr, if set, is returned for every wait.
	Missing map[string]bool
	WaitErr error

	EvalResult gson.JSON
	EvalErr    error
	ScrollErr  error
	ClickErr   error

	State        []byte
	StateErr     error
	LoadStateErr error

	mu        sync.Mutex
	navigated []string
	scrolls   []float64
	clicks    []string
	loaded    []byte
	closed    bool
	nextID    int
	listeners map[int]func(string)
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigated = append(p.navigated, url)
	p.mu.Unlock()
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
	}
	return p.NavigateErr
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.QueryFunc != nil {
		return p.QueryFunc(selector)
	}
	return p.Elements[selector], nil
}

func (p *Page) Evaluate(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	return p.EvalResult, p.EvalErr
}

func (p *Page) ScrollBy(ctx context.Context, dx, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scrolls = append(p.scrolls, dy)
	p.mu.Unlock()
	return p.ScrollErr
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	p.mu.Unlock()
	return p.ClickErr
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.WaitErr != nil {
		return p.WaitErr
	}
	if p.Missing[selector] {
		return browser.ErrSelectorTimeout
	}
	return nil
}

func (p *Page) OnResponse(fn func(url string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners == nil {
		p.listeners = make(map[int]func(string))
	}
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Page) StorageState(context.Context) ([]byte, error) {
	return p.State, p.StateErr
}

func (p *Page) LoadStorageState(_ context.Context, state []byte) error {
	if p.LoadStateErr != nil {
		return p.LoadStateErr
	}
	p.mu.Lock()
	p.loaded = append([]byte(nil), state...)
	p.mu.Unlock()
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("browsertest: page closed twice")
	}
	p.closed = true
	p.listeners = nil
	return nil
}

// Emit delivers url to every registered response listener.
func (p *Page) Emit(url string) {
	p.mu.Lock()
	fns := make([]func(string), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(url)
	}
}

// Listeners reports how many response listeners are registered.
func (p *Page) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

func (p *Page) Scrolls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.scrolls...)
}

func (p *Page) Loaded() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Opener hands out pages in order. NewPage, if set, builds each page instead.
type Opener struct {
	Pages   []*Page
	NewPage func(headless bool) *Page
	Err     error

	mu     sync.Mutex
	opened []bool
}

var _ browser.Opener = (*Opener)(nil)

func (o *Opener) Open(ctx context.Context, headless bool) (browser.Page, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, headless)
	if o.NewPage != nil {
		return o.NewPage(headless), nil
	}
	if len(o.Pages) == 0 {
		return nil, errors.New("browsertest: no pages left")
	}
	p := o.Pages[0]
	o.Pages = o.Pages[1:]
	return p, nil
}

// Opened reports the headless flag of every Open call, in order.
func (o *Opener) Opened() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.opened...)
}
