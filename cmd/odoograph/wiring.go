package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/internal/config"
	"github.com/ilcreatore32/odoograph/projector"
	"github.com/ilcreatore32/odoograph/store"
)

func newClient(cfg *config.Config, logger *zap.Logger) (*odoograph.Client, error) {
	if cfg.Odoo.URL == "" {
		return nil, errors.New("odoo.url is not configured (set ODOO_URL or --config)")
	}
	return odoograph.New(cfg.Odoo.URL, cfg.Odoo.DB, cfg.Odoo.Username, cfg.Odoo.Password,
		odoograph.WithAuthTimeout(cfg.GetAuthTimeout()),
		odoograph.WithSkipTLSVerify(cfg.Odoo.SkipTLSVerify),
		odoograph.WithLogger(logger.Named("odoo")),
	)
}

// loadRegistry reads cfg's schema file, or introspects cfg's models when no
// file is configured.
func loadRegistry(ctx context.Context, cfg *config.Config, client store.FieldDescriber, logger *zap.Logger) (projector.Registry, error) {
	var (
		reg projector.Registry
		err error
	)
	if cfg.Projection.SchemaPath != "" {
		reg, err = readRegistry(cfg.Projection.SchemaPath)
	} else {
		if client == nil {
			return nil, errors.New("no schema file configured and no Odoo connection to introspect")
		}
		kinds := make([]projector.Kind, 0, len(cfg.Projection.Models))
		for _, m := range cfg.Projection.Models {
			kinds = append(kinds, projector.Kind(m))
		}
		reg, err = store.Introspect(ctx, client, kinds...)
	}
	if err != nil {
		return nil, err
	}
	if verr := reg.Validate(); verr != nil {
		// undeclared targets are rendered in short form
		logger.Warn("Schema registry has relations to undeclared kinds",
			zap.String("details", strings.ReplaceAll(verr.Error(), "\n", "; ")),
		)
	}
	return reg, nil
}

func readRegistry(path string) (projector.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()
	return projector.LoadRegistry(f)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
