// Package tasks provides the asynq handlers for durable note-event
// dispatch.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/notewire/integrations/models"
)

// EventProcessor is the dispatch core the handler delegates to.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev models.NoteEvent) models.EventResult
}

// Handler consumes queued note events and runs the fan-out.
type Handler struct {
	processor   EventProcessor
	logger      *zap.Logger
	taskTimeout time.Duration
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithTaskTimeout sets the per-task processing timeout
func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

func NewHandler(processor EventProcessor, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		processor:   processor,
		logger:      logger,
		taskTimeout: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ProcessTask routes a task based on its type.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeNoteEvent:
		return h.processNoteEvent(ctx, task)
	case TypeHealthCheck:
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", task.Type())
	}
}

func (h *Handler) processNoteEvent(ctx context.Context, task *asynq.Task) error {
	var ev models.NoteEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("failed to unmarshal note event payload: %w", err)
	}

	result := h.processor.ProcessEvent(ctx, ev)
	if !result.Success {
		// Infrastructure fault: let asynq retry the whole event.
		return fmt.Errorf("note event dispatch failed: %v", result.Errors)
	}

	h.logger.Info("note event processed",
		zap.String("note_id", ev.NoteID),
		zap.String("change_type", ev.ChangeType),
		zap.Int("notified", result.ConnectionsNotified),
		zap.Int("failed", len(result.Errors)))

	return nil
}

// Mux returns a ServeMux with all task handlers registered.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeNoteEvent, h)
	mux.HandleFunc(TypeHealthCheck, func(context.Context, *asynq.Task) error { return nil })

	return mux
}
