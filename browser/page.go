// Package browser defines the page capability the collection engine drives
// and its go-rod implementation.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/ysmood/gson"
)

var (
	// ErrPageUnreachable marks failures where the page itself is gone
	// (target closed, renderer crashed, navigation failed). Callers treat
	// it as fatal for the current operation.
	ErrPageUnreachable = errors.New("browser: page unreachable")

	// ErrSelectorTimeout is returned by WaitForSelector when the element
	// did not render within the timeout.
	ErrSelectorTimeout = errors.New("browser: selector wait timed out")
)

// Page is the capability the engine consumes. Implementations are not safe
// for concurrent use; one caller drives one page at a time.
type Page interface {
	Navigate(ctx context.Context, url string) error
	QueryAll(ctx context.Context, selector string) ([]Node, error)
	Evaluate(ctx context.Context, js string, args ...any) (gson.JSON, error)
	ScrollBy(ctx context.Context, dx, dy float64) error
	Click(ctx context.Context, selector string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// OnResponse registers fn for every URL the page fetches. The callback
	// may run on another goroutine. The returned func unregisters it.
	OnResponse(fn func(url string)) (unsubscribe func())

	// StorageState snapshots the authentication state (cookies, storage).
	// The format is owned by the implementation and opaque to callers.
	StorageState(ctx context.Context) ([]byte, error)

	// LoadStorageState restores a snapshot taken by StorageState. It must be
	// called before navigating to the site.
	LoadStorageState(ctx context.Context, state []byte) error

	// Close releases the page and every listener registered on it.
	Close() error
}

// Node is a rendered element handle.
type Node interface {
	// HTML returns the element's outer HTML.
	HTML(ctx context.Context) (string, error)

	// Text returns the element's rendered text (innerText).
	Text(ctx context.Context) (string, error)

	Click(ctx context.Context) error
}

// Opener hands out pages. Headless pages come from the shared pool; a
// non-headless page opens a visible window for interactive use.
type Opener interface {
	Open(ctx context.Context, headless bool) (Page, error)
}
