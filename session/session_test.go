package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/browser/browsertest"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/models"
)

const marker = `[data-testid="primaryColumn"]`

func testConfig(t *testing.T) config.SessionConfig {
	return config.SessionConfig{
		StatePath:      filepath.Join(t.TempDir(), "session", "storage_state.json"),
		BaseURL:        "https://x.com",
		ProbePath:      "/home",
		LoginPath:      "/login",
		MarkerSelector: marker,
		ProbeTimeout:   time.Second,
	}
}

func newManager(opener browser.Opener, cfg config.SessionConfig) *Manager {
	return NewManager(opener, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func storeArtifact(t *testing.T, cfg config.SessionConfig, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.StatePath), 0o700))
	require.NoError(t, os.WriteFile(cfg.StatePath, []byte(data), 0o600))
}

func TestEnsureLoggedIn_NoArtifactStartsInteractiveLogin(t *testing.T) {
	cfg := testConfig(t)
	login := &browsertest.Page{}
	opener := &browsertest.Opener{Pages: []*browsertest.Page{login}}
	m := newManager(opener, cfg)

	s, err := m.EnsureLoggedIn(context.Background())

	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.True(t, models.HasCode(err, models.ErrCodeLoginRequired))
	assert.Equal(t, []bool{false}, opener.Opened(), "login page must be visible")
	assert.Equal(t, []string{"https://x.com/login"}, login.Navigated())
	assert.False(t, login.Closed())
	assert.Equal(t, StatusPending, m.Status())

	// A second call while pending does not open another window.
	_, err = m.EnsureLoggedIn(context.Background())
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.Len(t, opener.Opened(), 1)
}

func TestResume_PersistsSession(t *testing.T) {
	cfg := testConfig(t)
	login := &browsertest.Page{State: []byte(`{"cookies":[{"name":"auth_token"}]}`)}
	m := newManager(&browsertest.Opener{Pages: []*browsertest.Page{login}}, cfg)

	_, err := m.EnsureLoggedIn(context.Background())
	require.ErrorIs(t, err, ErrLoginRequired)

	s, err := m.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Valid)
	assert.Equal(t, login.State, s.State)
	assert.True(t, login.Closed())
	assert.Equal(t, StatusValid, m.Status())

	onDisk, err := os.ReadFile(cfg.StatePath)
	require.NoError(t, err)
	assert.Equal(t, login.State, onDisk)

	entries, err := os.ReadDir(filepath.Dir(cfg.StatePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	// Valid for the rest of the run without another probe.
	s2, err := m.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.Same(t, s, s2)
}

func TestResume_MarkerAbsentKeepsLoginPending(t *testing.T) {
	cfg := testConfig(t)
	login := &browsertest.Page{Missing: map[string]bool{marker: true}}
	m := newManager(&browsertest.Opener{Pages: []*browsertest.Page{login}}, cfg)

	_, err := m.EnsureLoggedIn(context.Background())
	require.ErrorIs(t, err, ErrLoginRequired)

	_, err = m.Resume(context.Background())
	assert.True(t, models.HasCode(err, models.ErrCodeAuthentication))
	assert.ErrorIs(t, err, browser.ErrSelectorTimeout)
	assert.Equal(t, StatusPending, m.Status())
	assert.NoFileExists(t, cfg.StatePath)

	m.Cancel()
	assert.True(t, login.Closed())
	assert.Equal(t, StatusMissing, m.Status())
}

func TestResume_WithoutPendingLogin(t *testing.T) {
	m := newManager(&browsertest.Opener{}, testConfig(t))

	_, err := m.Resume(context.Background())
	assert.True(t, models.HasCode(err, models.ErrCodeAuthentication))
}

func TestEnsureLoggedIn_ValidArtifact(t *testing.T) {
	cfg := testConfig(t)
	storeArtifact(t, cfg, `{"cookies":[]}`)
	probe := &browsertest.Page{}
	opener := &browsertest.Opener{Pages: []*browsertest.Page{probe}}
	m := newManager(opener, cfg)
	assert.Equal(t, StatusStored, m.Status())

	s, err := m.EnsureLoggedIn(context.Background())
	require.NoError(t, err)

	assert.True(t, s.Valid)
	assert.Equal(t, []bool{true}, opener.Opened())
	assert.Equal(t, `{"cookies":[]}`, string(probe.Loaded()))
	assert.Equal(t, []string{"https://x.com/home"}, probe.Navigated())
	assert.True(t, probe.Closed())

	_, err = m.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.Len(t, opener.Opened(), 1, "session is probed once per run")
}

func TestEnsureLoggedIn_StaleArtifactIsDeleted(t *testing.T) {
	cfg := testConfig(t)
	storeArtifact(t, cfg, `{"cookies":[]}`)
	probe := &browsertest.Page{Missing: map[string]bool{marker: true}}
	login := &browsertest.Page{}
	opener := &browsertest.Opener{Pages: []*browsertest.Page{probe, login}}
	m := newManager(opener, cfg)

	_, err := m.EnsureLoggedIn(context.Background())

	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.NoFileExists(t, cfg.StatePath)
	assert.True(t, probe.Closed())
	assert.Equal(t, []bool{true, false}, opener.Opened())
	assert.Equal(t, StatusPending, m.Status())
	m.Cancel()
}

func TestEnsureLoggedIn_ProbeNavigationFailure(t *testing.T) {
	cfg := testConfig(t)
	storeArtifact(t, cfg, `{}`)
	probe := &browsertest.Page{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	m := newManager(&browsertest.Opener{Pages: []*browsertest.Page{probe}}, cfg)

	_, err := m.EnsureLoggedIn(context.Background())

	assert.True(t, models.HasCode(err, models.ErrCodeNavigation))
	assert.FileExists(t, cfg.StatePath, "an unreachable site says nothing about the session")
	assert.True(t, probe.Closed())
}

func TestEnsureLoggedIn_LoginNavigationFailure(t *testing.T) {
	cfg := testConfig(t)
	login := &browsertest.Page{NavigateErr: errors.New("net::ERR_CONNECTION_RESET")}
	m := newManager(&browsertest.Opener{Pages: []*browsertest.Page{login}}, cfg)

	_, err := m.EnsureLoggedIn(context.Background())

	assert.True(t, models.HasCode(err, models.ErrCodeNavigation))
	assert.True(t, login.Closed())
	assert.Equal(t, StatusMissing, m.Status())
}

func TestInvalidate(t *testing.T) {
	cfg := testConfig(t)
	storeArtifact(t, cfg, `{}`)
	opener := &browsertest.Opener{NewPage: func(bool) *browsertest.Page { return &browsertest.Page{} }}
	m := newManager(opener, cfg)

	_, err := m.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	m.Invalidate()
	assert.Equal(t, StatusStored, m.Status())

	_, err = m.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.Len(t, opener.Opened(), 2)
}
