// Package main provides the Vessel worker: it consumes run start requests
// from the event bus and drives the workflow executor.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vesselhq/vessel/pkg/eventbus"
	"github.com/vesselhq/vessel/pkg/events"
	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/otelhelper"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// Starter claims and runs pending executions. Satisfied by
// *workflow.Executor.
type Starter interface {
	StartPending(ctx context.Context, executionID string) (*models.ExecutionContext, error)
}

type Worker struct {
	id       string
	logger   *slog.Logger
	executor Starter
	eventBus eventbus.EventBus
	tracer   trace.Tracer
}

func NewWorker(ctx context.Context, id string, logger *slog.Logger, executor Starter, eventBus eventbus.EventBus) *Worker {
	tracer := trace.Tracer(noop.NewTracerProvider().Tracer("vessel-worker"))

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		t, err := otelhelper.NewTracer(ctx, "vessel-worker")
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)
		} else {
			tracer = t
		}
	}

	return &Worker{
		id:       id,
		logger:   logger.With("module", "vessel-worker"),
		executor: executor,
		eventBus: eventBus,
		tracer:   tracer,
	}
}

// Start subscribes to run start requests and blocks until SIGINT/SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}

// handleExecutionRequested claims the pending run and traverses it. Runs
// already claimed by another worker (redelivery, competing consumers) are
// acked, not retried; everything the run does from here is persisted, so a
// crash mid-run never loses the claim semantics.
func (w *Worker) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"execution_id", requested.ExecutionID,
		"workflow_id", requested.WorkflowID,
		"event_id", requested.ID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "execution.start",
		attribute.String(otelhelper.ExecutionIDKey, requested.ExecutionID),
		attribute.String(otelhelper.WorkflowIDKey, requested.WorkflowID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	ec, err := w.executor.StartPending(ctx, requested.ExecutionID)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotPending) {
			logger.InfoContext(ctx, "Execution already claimed, skipping")

			return nil
		}

		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to execute workflow", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution finished", "status", ec.Status)

	return nil
}
