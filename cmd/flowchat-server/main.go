package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/classify"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/config"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/flow"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/server"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/session"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	var (
		st  store.Store
		err error
	)
	if cfg.DatabaseURL != "" {
		st, err = store.NewPostgres(cfg.DatabaseURL)
	} else {
		st, err = store.NewSQLite(cfg.SQLitePath)
	}
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("failed to close store", "error", closeErr)
		}
	}()
	slog.Info("store initialized", "postgres", cfg.DatabaseURL != "")

	promptSpec, err := classify.LoadPromptSpec(cfg.IntentPromptFile)
	if err != nil {
		slog.Error("failed to load intent prompt spec", "path", cfg.IntentPromptFile, "error", err)
		os.Exit(1)
	}

	classifier := classify.New(cfg.OpenAIAPIKey, cfg.Model, promptSpec, cfg.ClassifyTimeout)
	resolver := flow.NewResolver(classifier, st, classifier.SystemPreamble())
	sessions := session.NewStore()
	engine := flow.NewEngine(st, sessions, resolver, cfg.MaxStepsPerPass)

	srv := server.NewServer(cfg, st, engine)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
