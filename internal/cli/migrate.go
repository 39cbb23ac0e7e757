package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conti/internal/backend"
	applog "conti/internal/log"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts)
		},
	}
}

// runMigrate relies on the SQL backends migrating when they are opened.
func runMigrate(ctx context.Context, opts *rootOptions) error {
	cfg, err := LoadAndValidateConfig(opts.envFiles, opts.logLevel)
	if err != nil {
		return err
	}
	if backend.BackendType(cfg.DataBackend) == backend.MemoryBackend {
		return fmt.Errorf("memory backend has no schema to migrate")
	}

	app, err := opts.bootstrap(ctx, applog.ComponentStorage, false)
	if err != nil {
		return err
	}
	defer app.Close()

	app.Logger.InfoContext(ctx, "Migrations applied",
		applog.FieldOperation, applog.OpMigrate,
		"backend", cfg.DataBackend)
	return nil
}
