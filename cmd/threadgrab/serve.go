package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/threadgrab/api"
	"github.com/use-agent/threadgrab/api/handler"
	"github.com/use-agent/threadgrab/cache"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/store"
	"github.com/use-agent/threadgrab/webhook"
)

const (
	cacheTTL      = time.Hour
	purgeInterval = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	RunE:  serveAction,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("threadgrab starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"session", cfg.Session.StatePath,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 2. Launch browser, session manager and scraper ──────────────
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	// ── 3. Job store, cache and webhooks ────────────────────────────
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer func() { _ = st.Close() }()
	go purgeJobs(ctx, st, cfg.Store)

	cc := cache.New(cfg.Cache.MaxEntries, cacheTTL)
	defer cc.Close()

	jobs := handler.NewJobs(eng.scraper, st, cc, webhook.NewSender(cfg.Webhook.Timeout), slog.Default())

	// ── 4. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(eng.scraper, eng.sessions, jobs, cc, cfg)

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Running jobs are canceled and recorded as failed before the store
	// and browser close.
	jobs.Shutdown()
	slog.Info("threadgrab stopped")
	return nil
}

// purgeJobs deletes finished jobs older than the configured TTL until ctx
// is done.
func purgeJobs(ctx context.Context, st *store.Store, cfg config.StoreConfig) {
	if cfg.JobTTL <= 0 {
		return
	}
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PurgeBefore(ctx, time.Now().Add(-cfg.JobTTL))
			if err != nil {
				slog.Warn("job purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired jobs purged", "count", n)
			}
		}
	}
}
