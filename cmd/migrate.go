package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and list them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		// openApp already migrates.
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := a.pool.MigrationsApplied(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
