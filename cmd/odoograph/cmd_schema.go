package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph/internal/config"
	"github.com/ilcreatore32/odoograph/projector"
	"github.com/ilcreatore32/odoograph/store"
)

func newSchemaCmd() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Introspect Odoo models and print a YAML schema registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			names := splitList(models)
			if len(names) == 0 {
				names = cfg.Projection.Models
			}
			if len(names) == 0 {
				return errors.New("no models given (use --models or projection.models)")
			}

			client, err := newClient(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer client.Close()

			kinds := make([]projector.Kind, 0, len(names))
			for _, n := range names {
				kinds = append(kinds, projector.Kind(n))
			}
			reg, err := store.Introspect(cmd.Context(), client, kinds...)
			if err != nil {
				return err
			}
			return projector.WriteRegistry(cmd.OutOrStdout(), reg)
		},
	}
	cmd.Flags().StringSliceVar(&models, "models", nil, "models to introspect, e.g. sale.order,res.partner")
	return cmd
}
