package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowdeck/flowdeck/internal/ai"
	"github.com/flowdeck/flowdeck/internal/archive"
	"github.com/flowdeck/flowdeck/internal/engine"
	"github.com/flowdeck/flowdeck/internal/store"
)

// GenerateHandler runs KindGenerate jobs: announce the run to the workflow
// engine, generate text for the workflow, persist it, and archive a copy.
type GenerateHandler struct {
	store     *store.DB
	generator ai.Generator
	engine    *engine.Client
	archive   *archive.S3Store
	logger    *slog.Logger
}

// NewGenerateHandler wires the generate pipeline. engine and archive may be
// nil; the corresponding steps are skipped.
func NewGenerateHandler(db *store.DB, generator ai.Generator, eng *engine.Client, arch *archive.S3Store, logger *slog.Logger) *GenerateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{
		store:     db,
		generator: generator,
		engine:    eng,
		archive:   arch,
		logger:    logger,
	}
}

// Handle implements Handler.
func (h *GenerateHandler) Handle(ctx context.Context, job Job) Result {
	if job.Kind != KindGenerate {
		return Fail(job, fmt.Errorf("generate handler: unexpected kind %q", job.Kind))
	}

	workflow, err := h.store.Get(ctx, job.WorkflowID)
	if err != nil {
		return Fail(job, fmt.Errorf("load workflow: %w", err))
	}

	// The engine event is an announcement; its delivery failures must not
	// block generation.
	if h.engine != nil {
		err := h.engine.Dispatch(ctx, engine.Event{
			Name: "workflow.generate.requested",
			Data: map[string]any{
				"workflow_id":  workflow.ID,
				"requested_by": job.RequestedBy,
			},
		})
		if err != nil {
			h.logger.Warn("engine dispatch failed", "workflow", workflow.ID, "err", err)
		}
	}

	text, err := h.generator.Generate(ctx, generatePrompt(workflow))
	if err != nil {
		return Fail(job, err)
	}

	if err := h.store.SetGeneratedText(ctx, workflow.ID, text); err != nil {
		return Fail(job, err)
	}

	if key, err := h.archive.Put(ctx, workflow.ID, []byte(text)); err != nil {
		h.logger.Warn("archive failed", "workflow", workflow.ID, "err", err)
	} else if key != "" {
		h.logger.Debug("generated text archived", "workflow", workflow.ID, "key", key)
	}

	return Ok(job, text)
}

func generatePrompt(w store.Workflow) string {
	return fmt.Sprintf(
		"Write a concise operational summary for a workflow named %q. Description: %s",
		w.Name, w.Description)
}
