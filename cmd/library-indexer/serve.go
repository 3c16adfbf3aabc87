package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library-indexer/internal/handlers"
	"library-indexer/internal/memory"
	"library-indexer/internal/middleware"
	"library-indexer/internal/startup"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with watchers and background maintenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	startTime := time.Now()
	startup.PrintBanner()
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	initStart := time.Now()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	a.startBackground()
	startup.LogComponentInit("Components", time.Since(initStart))

	h := handlers.New(handlers.Deps{
		Libraries: a.libs,
		Scans:     a.coord,
		Catalog:   a.catalog,
		Watchers:  a.watchers,
		Cleanup:   a.cleanup,
		Pool:      a.pool,
		Memory:    a.monitor,
	})
	router := h.Router(cfg.MetricsEnabled)
	startup.LogHTTPRoutes(router, cfg.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks
	logged := middleware.Logger(loggingConfig)(router)
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(logged)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan struct{})
	go handleShutdown(srv, a, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            cfg.Port,
		MetricsEnabled:  cfg.MetricsEnabled,
		Libraries:       a.libs.Len(),
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		a.close()
		return err
	}
	<-done
	return nil
}

func handleShutdown(srv *http.Server, a *app, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		startup.LogShutdownStep("HTTP server shutdown error: " + err.Error())
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping watchers, scans and library databases")
	a.close()
	startup.LogShutdownStepComplete("Components stopped")

	startup.LogShutdownComplete()
}
