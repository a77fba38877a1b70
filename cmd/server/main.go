package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pricedrop/pricedrop-monitor/internal/config"
	"github.com/pricedrop/pricedrop-monitor/internal/models"
	"github.com/pricedrop/pricedrop-monitor/internal/monitor"
	"github.com/pricedrop/pricedrop-monitor/internal/notifier"
	"github.com/pricedrop/pricedrop-monitor/internal/scraper"
	"github.com/pricedrop/pricedrop-monitor/internal/storage"
	"github.com/pricedrop/pricedrop-monitor/internal/util"
)

type runStateReader interface {
	LastRunState(ctx context.Context) (*models.RunState, error)
}

type Server struct {
	checker monitor.Checker
	state   runStateReader
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
	slog.Info("Starting price monitor server...", "renderer", cfg.ScrapeRenderer, "batch_size", cfg.BatchSize)

	ctx := context.Background()
	store, err := storage.New(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	err = util.RetryWithBackoff(ctx, 3, time.Second, func(attempt int) error {
		if err := store.Ping(ctx); err != nil {
			slog.Warn("Firestore not reachable yet", "attempt", attempt+1, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		slog.Error("Critical error reaching Firestore", "error", err)
		os.Exit(1)
	}

	fetcher, closeFetcher, err := scraper.NewFetcher(cfg)
	if err != nil {
		slog.Error("Critical error initializing page fetcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeFetcher(); err != nil {
			slog.Warn("Failed to close page fetcher", "error", err)
		}
	}()

	s := scraper.New(cfg, fetcher, scraper.LoadConfig(cfg.SelectorsConfigPath))
	n := notifier.New(cfg)
	m := monitor.New(store, n, s, cfg)

	srv := &Server{checker: m, state: store}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.CheckInterval > 0 {
		go srv.schedule(runCtx, cfg.CheckInterval)
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		<-runCtx.Done()
		slog.Info("Received signal, shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.CheckPricesHandler)
	mux.HandleFunc("/check-prices", s.CheckPricesHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	return mux
}

// schedule triggers a run every interval until ctx is done.
func (s *Server) schedule(ctx context.Context, interval time.Duration) {
	slog.Info("Scheduled price checks enabled", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCheck()
		}
	}
}

// runCheck runs one price check and recovers from panics so a bad run
// cannot take the server down. There is no run deadline; timeouts belong to
// the scrape, storage and notification clients.
func (s *Server) runCheck() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in CheckAll", "panic", r)
		}
	}()
	if err := s.checker.CheckAll(context.Background()); err != nil {
		slog.Error("Error checking prices", "error", err)
	}
}

func (s *Server) CheckPricesHandler(w http.ResponseWriter, r *http.Request) {
	// Run asynchronously so the response isn't blocked by scraping,
	// Firestore and notification calls.
	go s.runCheck()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Price check started.")
}

type healthResponse struct {
	Status  string           `json:"status"`
	LastRun *models.RunState `json:"lastRun,omitempty"`
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.state != nil {
		last, err := s.state.LastRunState(r.Context())
		if err != nil {
			slog.Warn("Failed to read last run state", "error", err)
		}
		resp.LastRun = last
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Failed to write health response", "error", err)
	}
}
