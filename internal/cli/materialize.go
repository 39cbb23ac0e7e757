package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/services"
)

func newMaterializeCommand(opts *rootOptions) *cobra.Command {
	var userID, date string

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize recurring transactions once and exit",
		Long: "Creates the missing instances of recurring templates up to --date (today by default).\n" +
			"Without --user every user owning a template is processed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var target *core.Date
			if date != "" {
				d, err := core.ParseDate(date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				target = &d
			}
			return runMaterialize(cmd.Context(), opts, userID, target, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only process this user")
	cmd.Flags().StringVar(&date, "date", "", "target date, YYYY-MM-DD")

	return cmd
}

func runMaterialize(ctx context.Context, opts *rootOptions, userID string, target *core.Date, out io.Writer) error {
	app, err := opts.bootstrap(ctx, applog.ComponentCLI, true)
	if err != nil {
		return err
	}
	defer app.Close()

	processor := services.NewRecurringProcessor(app.Backend, app.Publisher())

	var created int
	if userID != "" {
		created, err = processor.ProcessRecurringTransactions(ctx, userID, target)
	} else {
		created, err = processor.ProcessAllUsers(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}

	_, err = fmt.Fprintf(out, "created %d transactions\n", created)
	return err
}
