// Package main runs the document store: a small REST service over SQLite
// that edge servers use as their remote store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/docserver"
	"github.com/toollender/toollender/internal/docstore"
	"github.com/toollender/toollender/internal/logger"
	"golang.org/x/net/netutil"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	if err := run(cfg, log); err != nil {
		log.Error("Document store stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	store, err := docstore.Open(cfg.DocStore.DBPath, log.Component("docstore"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close database", "error", err)
		}
	}()

	if cfg.DocStore.APIKey == "" {
		log.Warn("DOCSTORE_API_KEY is not set, the document store accepts unauthenticated requests")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.DocStore.Port,
		Handler:           docserver.NewServer(store, cfg.DocStore.APIKey, log.Component("docserver")),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if cfg.DocStore.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.DocStore.MaxConns)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Document store listening", "addr", ln.Addr().String(), "db", cfg.DocStore.DBPath,
			"max_conns", cfg.DocStore.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down document store...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
