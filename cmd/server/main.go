package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/config"
	"github.com/playperu/knowsy/internal/database"
	"github.com/playperu/knowsy/internal/feed"
	"github.com/playperu/knowsy/internal/game"
	"github.com/playperu/knowsy/internal/handler/health"
	"github.com/playperu/knowsy/internal/migrations"
	"github.com/playperu/knowsy/internal/reconcile"
	"github.com/playperu/knowsy/internal/server"
	"github.com/playperu/knowsy/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{"sqlite": database.Checker{DB: db}}

	// --- Change feed ---
	var changes feed.Feed
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		changes = feed.NewRedis(rdb, logger)
		checks["redis"] = feed.Checker{Client: rdb}
		logger.Info("connected to redis")
	} else {
		changes = feed.NewBroker()
		logger.Info("using in-process change feed")
	}

	// --- Game ---
	st := store.New(db, changes, logger)
	if cfg.SeedCatalog {
		seeded, err := st.SeedCatalog(ctx)
		if err != nil {
			return fmt.Errorf("seeding catalog: %w", err)
		}
		if seeded {
			logger.Info("seeded topic catalog")
		}
	}

	var opts []agent.Option
	if cfg.InferenceURL != "" {
		opts = append(opts, agent.WithChooser(agent.NewInference(cfg.InferenceURL, cfg.InferenceRPS)))
		logger.Info("bots choose topics through inference", "url", cfg.InferenceURL)
	}
	bots := agent.New(st, logger, opts...)

	ctrl := game.New(game.Config{
		MaxPlayers:       cfg.MaxPlayers,
		Cooldown:         cfg.TransitionCooldown,
		SelectionTimeout: cfg.SelectionTimeout,
		GuessTimeout:     cfg.GuessTimeout,
		DisconnectGrace:  cfg.DisconnectGrace,
	}, st, bots, logger)
	defer ctrl.Wait()

	rec := reconcile.New(st, changes, cfg.PollInterval, reconcile.Timeouts{
		Selection: cfg.SelectionTimeout,
		Guess:     cfg.GuessTimeout,
	}, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Game:         ctrl,
		Store:        st,
		Reconciler:   rec,
		FunctionsKey: cfg.FunctionsKey,
		SPADir:       cfg.SPADir,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		logger.Info("starting deadline sweeper", "interval", cfg.SweepInterval)
		return ctrl.Run(gctx, cfg.SweepInterval)
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
