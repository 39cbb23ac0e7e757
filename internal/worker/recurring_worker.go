// Package worker runs recurring materialization in the background: a periodic
// sweep over every user with templates, plus on-demand requests from AMQP.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/core"
	applog "conti/internal/log"
)

// Processor is the slice of services.RecurringProcessor the worker drives.
type Processor interface {
	ProcessRecurringTransactions(ctx context.Context, userID string, target *core.Date) (int, error)
	ProcessAllUsers(ctx context.Context, target *core.Date) (int, error)
}

// RequestConsumer delivers materialize requests until ctx is done.
type RequestConsumer interface {
	ConsumeMaterializeRequests(ctx context.Context, handler amqp.MaterializeHandler) error
}

// RecurringWorker handles recurring materialization outside the request path.
type RecurringWorker struct {
	processor Processor
	consumer  RequestConsumer
	interval  time.Duration
	logger    *applog.Logger
}

// NewRecurringWorker wires the worker. consumer may be nil, in which case
// only the periodic sweep runs.
func NewRecurringWorker(processor Processor, consumer RequestConsumer, interval time.Duration, logger *applog.Logger) *RecurringWorker {
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentWorker})
	}
	return &RecurringWorker{
		processor: processor,
		consumer:  consumer,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps once immediately, then every interval, and consumes AMQP requests
// concurrently. It returns nil when ctx is canceled.
func (w *RecurringWorker) Run(ctx context.Context) error {
	if w.processor == nil {
		return fmt.Errorf("worker not properly initialized")
	}
	if w.interval <= 0 {
		return fmt.Errorf("invalid sweep interval %s", w.interval)
	}

	w.logger.InfoContext(ctx, "Recurring worker started",
		"interval", w.interval.String(),
		"consumer", w.consumer != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.sweepLoop(gctx)
	})
	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeMaterializeRequests(gctx, w.HandleMaterializeRequest)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	w.logger.InfoContext(ctx, "Recurring worker stopped")
	return err
}

func (w *RecurringWorker) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.LogError(ctx, "Recurring sweep failed", err,
				applog.ErrorTypeDatabase, applog.OpSweep, nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep materializes every user's templates up to today.
func (w *RecurringWorker) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	created, err := w.processor.ProcessAllUsers(ctx, nil)
	if err != nil {
		return created, err
	}
	w.logger.InfoContext(ctx, "Recurring sweep complete",
		applog.FieldCreated, created,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return created, nil
}

// HandleMaterializeRequest processes one queued request. Requests that can
// never succeed are acknowledged by returning nil; other failures are returned
// so the consumer can requeue them.
func (w *RecurringWorker) HandleMaterializeRequest(ctx context.Context, req *amqp.MaterializeRequest) error {
	target := "today"
	if req.TargetDate != nil {
		target = req.TargetDate.String()
	}
	logger := w.logger.With("request_id", req.RequestID)

	created, err := w.processor.ProcessRecurringTransactions(ctx, req.UserID, req.TargetDate)
	if err != nil {
		if core.IsValidationError(err) {
			logger.WarnContext(ctx, "Dropping invalid materialize request",
				applog.FieldUserID, req.UserID,
				applog.FieldError, err)
			return nil
		}
		logger.LogError(ctx, "Materialize request failed", err,
			applog.ErrorTypeDatabase, applog.OpMaterialize,
			applog.NewFields().WithMaterialization(req.UserID, target, created))
		return fmt.Errorf("materialize for user %s: %w", req.UserID, err)
	}

	logger.InfoContext(ctx, "Materialize request processed",
		applog.NewFields().WithMaterialization(req.UserID, target, created).ToSlice()...)
	return nil
}
