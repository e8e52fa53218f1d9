package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/driver"
)

func newIndicesCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "indices",
		Short: "Create the graph database constraints and indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.config)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			d, err := driver.NewNeo4jDriver(ctx, cfg.Neo4j, logger)
			if err != nil {
				return err
			}
			defer d.Close(ctx)

			if err := d.BuildIndices(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready: %d constraints and indices\n", len(driver.SchemaQueries))
			return nil
		},
	}
}
