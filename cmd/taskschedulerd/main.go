package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/basecrew/taskscheduler/internal/api"
	"github.com/basecrew/taskscheduler/internal/batch"
	"github.com/basecrew/taskscheduler/internal/config"
	"github.com/basecrew/taskscheduler/internal/dispatcher"
	"github.com/basecrew/taskscheduler/internal/httpapi"
	"github.com/basecrew/taskscheduler/internal/logging"
	"github.com/basecrew/taskscheduler/internal/runner"
	"github.com/basecrew/taskscheduler/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.DBPath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	r := runner.New(storeInst, logger, runner.Options{
		TaskTimeout: cfg.Runner.TaskTimeout,
	})

	disp := dispatcher.New(storeInst, r, logger, dispatcher.Options{
		ShutdownGrace: cfg.Runner.ShutdownGrace,
		ProbeTimeout:  cfg.Runner.ConditionTimeout,
	})

	batchOps := batch.New(storeInst, r, logger)
	svc := api.New(storeInst, r, batchOps, logger)

	var auth *httpapi.AuthConfig
	if cfg.Server.AuthFilePath != "" {
		auth, err = httpapi.LoadAuthConfig(cfg.Server.AuthFilePath)
		if err != nil {
			logger.Error("load auth file", "error", err)
			os.Exit(1)
		}
	}

	tlsConfig, err := httpapi.TLSConfig{
		CertPath:     cfg.Server.TLSCertPath,
		KeyPath:      cfg.Server.TLSKeyPath,
		AutoGenerate: cfg.Server.TLSAutoGen,
	}.Resolve(cfg.StateDir())
	if err != nil {
		logger.Error("resolve TLS configuration", "error", err)
		os.Exit(1)
	}

	httpServer, err := httpapi.New(svc, httpapi.Options{
		Addr:       cfg.Server.Addr,
		BasePath:   cfg.Server.BasePath,
		PreferIPv6: cfg.Server.PreferIPv6,
		Auth:       auth,
		TLS:        tlsConfig,
	}, logger)
	if err != nil {
		logger.Error("create http server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(baseCtx)

	runnerDone := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(runnerDone)
	}()

	dispatcherDone := make(chan struct{})
	go func() {
		if err := disp.Run(ctx); err != nil {
			logger.Error("dispatcher stopped with error", "error", err)
		}
		close(dispatcherDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("http server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(baseCtx, cfg.Runner.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}

	// Canceling ctx stops the Dispatcher's tick loop, which in turn
	// emits shutdown-event fires and waits (bounded by ShutdownGrace)
	// for the Runner to drain before returning (spec §4.4).
	cancel()
	<-dispatcherDone
	<-runnerDone

	logger.Info("shutdown complete")
}
