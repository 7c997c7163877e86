// Package server initializes and runs the token service. It wires the
// repository manager, the token services, the HTTP API, and the cleanup
// sweeper, and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokenvault/internal/logging"
	"github.com/dmitrijs2005/tokenvault/internal/server/config"
	"github.com/dmitrijs2005/tokenvault/internal/server/httpapi"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenvault/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	rm      repomanager.RepositoryManager
	server  *httpapi.Server
	sweeper *services.Sweeper
}

func NewApp(cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	rm, err := repomanager.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	issuer := services.NewIssuerService(rm, cfg)
	sessions := services.NewSessionService(rm, cfg)
	rotation := services.NewRotationService(rm, issuer, sessions, cfg)

	server := httpapi.NewServer(cfg, logger, issuer, rotation, sessions)
	sweeper := services.NewSweeper(rm, cfg, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		rm:      rm,
		server:  server,
		sweeper: sweeper,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.rm.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	if err := app.rm.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}

	return nil
}
