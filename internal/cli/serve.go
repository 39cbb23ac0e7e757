package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "conti/internal/http"
	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the periodic recurring sweep in this process")

	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, withWorker bool) error {
	ctx, stop := SignalContext(ctx)
	defer stop()

	app, err := opts.bootstrap(ctx, applog.ComponentHTTP, true)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	processor := services.NewRecurringProcessor(app.Backend, app.Publisher())
	svc := apphttp.Services{
		Transactions: services.NewTransactionService(app.Backend, app.Publisher()),
		Recurring:    processor,
		Readiness:    app.Backend,
	}
	if app.AMQP != nil {
		svc.Queue = app.AMQP
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             app.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.InfoContext(gctx, "HTTP server listening",
			"addr", srv.Addr,
			"backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if withWorker {
		w := worker.NewRecurringWorker(processor, nil, cfg.RecurringProcessorInterval,
			app.Logger.WithComponent(applog.ComponentWorker))
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		app.Logger.LogError(ctx, "Server stopped with error", err, applog.ErrorTypeInternal, applog.OpShutdown, nil)
		return err
	}
	app.Logger.Info("Server shutdown complete")
	return nil
}
