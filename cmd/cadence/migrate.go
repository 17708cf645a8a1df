package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cadencevoice/cadence/pkg/coach/persist"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to the configured Postgres store",
		RunE: func(_ *cobra.Command, _ []string) error {
			// Only the DSN matters here; skip full config validation so
			// migrations can run before the transport is configured.
			dsn := strings.TrimSpace(os.Getenv("CADENCE_POSTGRES_DSN"))
			if dsn == "" {
				return fmt.Errorf("CADENCE_POSTGRES_DSN must be set to migrate")
			}
			if err := persist.Migrate(dsn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
