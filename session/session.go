// Package session keeps the authenticated X session alive across runs.
//
// Login is a suspend/resume protocol: when no valid session exists,
// EnsureLoggedIn opens a visible browser on the login screen and returns
// ErrLoginRequired instead of blocking. The caller lets a human finish the
// login, then calls Resume.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/models"
)

// ErrLoginRequired is wrapped by the LOGIN_REQUIRED error EnsureLoggedIn
// returns while an interactive login is pending.
var ErrLoginRequired = errors.New("session: interactive login required")

// Status of the managed session.
type Status string

const (
	StatusValid   Status = "valid"   // probed successfully during this run
	StatusStored  Status = "stored"  // artifact on disk, not yet probed
	StatusMissing Status = "missing" // no artifact, no login in progress
	StatusPending Status = "pending" // visible login page waiting for Resume
)

// Session is an authentication snapshot. State is opaque and only
// meaningful to the browser.Page implementation that produced it.
type Session struct {
	State []byte
	Valid bool
}

// Manager is the only writer of the session artifact. It is safe for
// concurrent use; calls are serialized.
type Manager struct {
	opener browser.Opener
	cfg    config.SessionConfig
	logger *slog.Logger

	mu      sync.Mutex
	pending browser.Page
	current *Session
}

// NewManager returns a Manager opening pages through opener.
func NewManager(opener browser.Opener, cfg config.SessionConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{opener: opener, cfg: cfg, logger: logger}
}

// EnsureLoggedIn returns a valid session. A session probed earlier in this
// run is reused. Otherwise the stored artifact is loaded into a fresh
// headless page and probed; if it is missing or stale, interactive login is
// started and a LOGIN_REQUIRED error wrapping ErrLoginRequired is returned.
func (m *Manager) EnsureLoggedIn(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current, nil
	}
	if m.pending != nil {
		return nil, loginRequired()
	}

	state, err := os.ReadFile(m.cfg.StatePath)
	switch {
	case err == nil:
		valid, err := m.probe(ctx, state)
		if err != nil {
			return nil, err
		}
		if valid {
			m.current = &Session{State: state, Valid: true}
			m.logger.Info("stored session is valid", "path", m.cfg.StatePath)
			return m.current, nil
		}
		m.logger.Warn("stored session is stale, removing it", "path", m.cfg.StatePath)
		if err := os.Remove(m.cfg.StatePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to remove stale session", "path", m.cfg.StatePath, "error", err)
		}
	case errors.Is(err, os.ErrNotExist):
		m.logger.Info("no stored session", "path", m.cfg.StatePath)
	default:
		return nil, models.NewAuthenticationError("failed to read stored session", err)
	}

	if err := m.startLogin(ctx); err != nil {
		return nil, err
	}
	return nil, loginRequired()
}

// probe loads state into a headless page and checks for the logged-in
// marker. A marker timeout means the session is stale, not an error.
func (m *Manager) probe(ctx context.Context, state []byte) (bool, error) {
	page, err := m.opener.Open(ctx, true)
	if err != nil {
		return false, err
	}
	defer page.Close()

	if err := page.LoadStorageState(ctx, state); err != nil {
		if ctx.Err() != nil {
			return false, probeTimeout(ctx.Err())
		}
		m.logger.Warn("stored session could not be loaded", "error", err)
		return false, nil
	}

	if err := page.Navigate(ctx, m.url(m.cfg.ProbePath)); err != nil {
		if ctx.Err() != nil {
			return false, probeTimeout(ctx.Err())
		}
		return false, models.NewNavigationError("session probe navigation failed", err)
	}

	err = page.WaitForSelector(ctx, m.cfg.MarkerSelector, m.cfg.ProbeTimeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, browser.ErrSelectorTimeout):
		return false, nil
	case ctx.Err() != nil:
		return false, probeTimeout(ctx.Err())
	default:
		return false, models.NewNavigationError("session probe failed", err)
	}
}

// startLogin opens the visible login page and parks it as pending.
func (m *Manager) startLogin(ctx context.Context) error {
	page, err := m.opener.Open(ctx, false)
	if err != nil {
		return models.NewAuthenticationError("failed to open login browser", err)
	}
	if err := page.Navigate(ctx, m.url(m.cfg.LoginPath)); err != nil {
		_ = page.Close()
		return models.NewNavigationError("login page navigation failed", err)
	}
	m.pending = page
	m.logger.Info("interactive login started, waiting for resume", "url", m.url(m.cfg.LoginPath))
	return nil
}

// Resume finishes a pending interactive login: it checks the login page for
// the logged-in marker and persists the new session. If the marker is not
// there the login stays pending so Resume can be retried.
func (m *Manager) Resume(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return nil, models.NewAuthenticationError("no interactive login in progress", nil)
	}

	if err := m.pending.WaitForSelector(ctx, m.cfg.MarkerSelector, m.cfg.ProbeTimeout); err != nil {
		return nil, models.NewAuthenticationError("login not completed", err)
	}

	state, err := m.pending.StorageState(ctx)
	if err != nil {
		return nil, models.NewAuthenticationError("failed to snapshot session", err)
	}
	if err := writeAtomic(m.cfg.StatePath, state); err != nil {
		return nil, models.NewAuthenticationError("failed to persist session", err)
	}

	_ = m.pending.Close()
	m.pending = nil
	m.current = &Session{State: state, Valid: true}
	m.logger.Info("interactive login completed, session saved", "path", m.cfg.StatePath)
	return m.current, nil
}

// Cancel abandons a pending login and closes its page.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		_ = m.pending.Close()
		m.pending = nil
		m.logger.Info("interactive login canceled")
	}
}

// Invalidate forgets the in-memory session so the next EnsureLoggedIn
// probes the stored artifact again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Status reports the session state without touching the browser.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.pending != nil:
		return StatusPending
	case m.current != nil:
		return StatusValid
	}
	if _, err := os.Stat(m.cfg.StatePath); err == nil {
		return StatusStored
	}
	return StatusMissing
}

func (m *Manager) url(path string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func loginRequired() error {
	return models.NewScrapeError(
		models.ErrCodeLoginRequired,
		"manual login required: finish logging in in the opened browser window, then resume",
		ErrLoginRequired,
	)
}

func probeTimeout(err error) error {
	return models.NewScrapeError(models.ErrCodeTimeout, "session probe interrupted", err)
}

// writeAtomic replaces path with data through a temp file in the same
// directory, so readers never see a partial artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
