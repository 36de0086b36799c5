package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cached facets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		if st == nil {
			return eris.New("purge requires a store; set store.driver to sqlite, postgres or redis")
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.DeleteExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "delete expired")
		}
		zap.L().Info("purge complete", zap.Int("rows_deleted", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
