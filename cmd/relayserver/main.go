// Package main provides the relay server binary that runs the matchmaking
// and room relay service on a WebSocket endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/quickmatch/relay/internal/config"
	"github.com/quickmatch/relay/internal/gateway"
	"github.com/quickmatch/relay/internal/observability"
	"github.com/quickmatch/relay/internal/relay"
	"github.com/quickmatch/relay/internal/server"
	"github.com/quickmatch/relay/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, config.ErrNoConfigFile) {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("default_mode", cfg.Relay.DefaultMode),
	)

	lifecycle := server.NewLifecycle(logger)

	// Match history is optional. Without a database the relay keeps no
	// persistent state.
	var historyRecorder relay.Recorder = relay.NopRecorder{}
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		recorder := postgres.NewRecorder(postgres.NewHistoryRepository(pool.DB()), logger)
		historyRecorder = recorder

		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				recorder.Close()
				pool.Close()
			},
		})
	}

	ids := relay.NewIDSource()
	registry := relay.NewRegistry(ids, cfg.Relay.SessionBuffer)
	coord := relay.NewCoordinator(ids, cfg.Relay.DefaultMode, historyRecorder, logger)
	dispatcher := relay.NewDispatcher(coord, registry, logger)
	gw := gateway.New(cfg.Server, registry, dispatcher, coord, logger)

	lifecycle.Add("gateway", gw)

	logger.Info("relay server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
