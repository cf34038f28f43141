package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/riffid/internal/config"
	"github.com/and161185/riffid/internal/migrate"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or inspect the authority schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn is required (RIFF_DATABASE_DSN)")
			}
			if args[0] == "version" {
				v, err := migrate.Version(cmd.Context(), cfg.Database.DSN)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			return migrate.Run(cmd.Context(), cfg.Database.DSN, migrate.Command(args[0]))
		},
	}
}
