package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geoatlas/tileserv/internal/cache"
	"github.com/geoatlas/tileserv/internal/catalog"
	"github.com/geoatlas/tileserv/internal/config"
	"github.com/geoatlas/tileserv/internal/logger"
	"github.com/geoatlas/tileserv/internal/observability"
	"github.com/geoatlas/tileserv/internal/refresh"
	"github.com/geoatlas/tileserv/internal/routes"
	"github.com/geoatlas/tileserv/internal/server"
	"github.com/geoatlas/tileserv/internal/tms"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	boot := logger.Build(logger.Config{Level: "info", Component: "tileserv"}, os.Stderr)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot.Error().Err(err).Msg("config load failed")
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "tileserv",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	log.Info("starting tileserv",
		"addr", cfg.Addr, "version", Version, "default_tms", cfg.DefaultScheme)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := tms.NewRegistry(cfg.DefaultScheme, append(tms.Defaults(), cfg.CustomSchemes...))
	if err != nil {
		log.Error("tiling scheme registry setup failed", "err", err)
		return 1
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Error("invalid database url", "err", err)
		return 1
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.ConnConfig.ConnectTimeout = cfg.PoolTimeout
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("database pool setup failed", "err", err)
		return 1
	}
	defer pool.Close()

	functions := make([]*catalog.FunctionLayer, 0, len(cfg.Functions))
	for _, fc := range cfg.Functions {
		fl := &catalog.FunctionLayer{
			LayerID:  fc.ID,
			Schema:   fc.Schema,
			Function: fc.Function,
			Bbox:     fc.Bounds,
			MinZ:     fc.MinZoom,
			MaxZ:     fc.MaxZoom,
		}
		for _, p := range fc.Params {
			fl.Params = append(fl.Params, catalog.FunctionParam{
				Name: p.Name, Type: p.Type, Default: p.Default,
			})
		}
		functions = append(functions, fl)
	}

	loader := &catalog.PostgisLoader{
		Pool:           pool,
		Functions:      functions,
		Schemas:        cfg.IncludeSchemas,
		DefaultMinZoom: cfg.DefaultMinZoom,
		DefaultMaxZoom: cfg.DefaultMaxZoom,
		Logger:         log,
	}
	store := catalog.NewStore(loader, log)

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = store.Refresh(loadCtx)
	cancel()
	if err != nil {
		log.Error("initial catalog load failed", "err", err)
		return 1
	}
	if cfg.RefreshInterval > 0 || cfg.KafkaEnabled {
		go store.Run(ctx, cfg.RefreshInterval)
	}

	var tiles routes.TileSource = catalog.NewFetcher(pool)
	if cfg.CacheEnabled {
		cached, err := cache.New(ctx, cache.Config{
			RedisAddr: cfg.RedisAddr,
			LRUSize:   cfg.CacheLRUSize,
			TTL:       cfg.CacheTTL,
		}, tiles, log)
		if err != nil {
			log.Error("tile cache setup failed", "err", err)
			return 1
		}
		defer func() { _ = cached.Close() }()
		tiles = cached
	}

	if cfg.KafkaEnabled {
		consumer := refresh.New(refresh.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log, store)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("refresh consumer exited", "err", err)
			}
		}()
	}

	composer := routes.NewComposer(log, cfg.BasePath, registry, store, tiles)

	if err := server.Run(ctx, cfg, log, composer, pool); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}
