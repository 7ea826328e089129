// Command kgraph-server exposes knowledge-graph extraction over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bbiangul/kgraph"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("server: loading .env", "error", err)
	}

	cfg := kgraph.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = kgraph.LoadConfig(*configPath); err != nil {
			slog.Error("server: loading config", "error", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Error("server: reading environment", "error", err)
		os.Exit(1)
	}

	engine, err := kgraph.New(cfg)
	if err != nil {
		slog.Error("server: creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine, newMetrics())
	srv := &http.Server{
		Addr:         *addr,
		Handler:      chain(h.routes(), os.Getenv("KGRAPH_SERVER_API_KEY"), os.Getenv("KGRAPH_CORS_ORIGINS")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // extraction of long documents can take minutes
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", *addr, "provider", cfg.Chat.Provider, "model", cfg.Chat.Model)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server: listen failed", "error", err)
			engine.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
	}
	slog.Info("server: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server: shutdown", "error", err)
	}
	slog.Info("server: stopped")
}
