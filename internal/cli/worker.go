package cli

import (
	"context"

	"github.com/spf13/cobra"

	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/worker"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the periodic recurring sweep and consume queued materialize requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(ctx context.Context, opts *rootOptions) error {
	ctx, stop := SignalContext(ctx)
	defer stop()

	app, err := opts.bootstrap(ctx, applog.ComponentWorker, true)
	if err != nil {
		return err
	}
	defer app.Close()

	var consumer worker.RequestConsumer
	if app.AMQP != nil {
		consumer = app.AMQP
	}

	processor := services.NewRecurringProcessor(app.Backend, app.Publisher())
	w := worker.NewRecurringWorker(processor, consumer, app.Config.RecurringProcessorInterval, app.Logger)
	return w.Run(ctx)
}
