package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStores(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer st.close()

			log.Info().Str("driver", a.cfg.DBDriver).Msg("migrations applied")
			return nil
		},
	}
}
