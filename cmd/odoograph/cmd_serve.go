package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/internal/config"
	"github.com/ilcreatore32/odoograph/projector"
	"github.com/ilcreatore32/odoograph/server"
	"github.com/ilcreatore32/odoograph/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the records API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := odoograph.NewLogger(cfg.LoggerEnv())
	defer func() { _ = logger.Sync() }()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	reg, err := loadRegistry(ctx, cfg, client, logger)
	if err != nil {
		return err
	}

	var lookup projector.Lookup = store.NewOdoo(client, reg, logger.Named("store"))
	if !cfg.Cache.Disabled {
		cached := store.NewCached(lookup, store.WithTTL(cfg.GetCacheTTL()), store.WithCacheLogger(logger.Named("cache")))
		go purgeLoop(ctx, cached, cfg.GetCacheTTL(), logger)
		lookup = cached
	}

	p := projector.New(reg,
		projector.WithLookup(lookup),
		projector.WithMaxDepth(cfg.Projection.MaxDepth),
		projector.WithLogger(logger.Named("projector")),
	)

	defaults := make(map[string]projector.Projection, len(cfg.Projection.Projections))
	for model := range cfg.Projection.Projections {
		defaults[model] = cfg.DefaultProjection(model)
	}

	srv := server.New(client, p,
		server.WithDepth(cfg.Projection.DefaultDepth, cfg.Projection.MaxDepth),
		server.WithDefaultProjections(defaults),
		server.WithLogger(logger.Named("http")),
	)
	logger.Info("Starting odoograph",
		zap.String("addr", cfg.Server.Addr),
		zap.String("odoo", cfg.Odoo.URL),
		zap.Int("kinds", len(reg)),
		zap.Bool("cache", !cfg.Cache.Disabled),
	)
	return srv.Run(ctx, cfg.Server.Addr)
}

// purgeLoop drops expired cache entries once per ttl until ctx is done.
func purgeLoop(ctx context.Context, cached *store.Cached, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cached.Purge(); n > 0 {
				logger.Debug("Purged expired cache entries", zap.Int("entries", n))
			}
		}
	}
}
