package pipeline

import (
	"context"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// Task is one pipeline stage over a homogeneous list of items.
//
// Preprocess maps the stage input into per-item descriptors. Execute
// produces a payload per descriptor, yielding pairs in input order; it
// yields a nil payload for items that are already persisted. Postprocess
// persists one item and returns its completed descriptor.
type Task[In, Out any] interface {
	Name() string
	Preprocess(ctx context.Context, in In) ([]Out, error)
	Execute(ctx context.Context, items []Out, yield func(Out, []byte) error) error
	Postprocess(ctx context.Context, item Out, payload []byte) (Out, error)
}

// Run drives one task through its lifecycle and returns the completed
// descriptors in input order.
func Run[In, Out any](ctx context.Context, log *logger.Logger, t Task[In, Out], in In) ([]Out, error) {
	items, err := t.Preprocess(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s preprocess: %w", t.Name(), err)
	}
	log.Debug("Task preprocessed", "task", t.Name(), "items", len(items))

	results := make([]Out, 0, len(items))
	yield := func(item Out, payload []byte) error {
		done, err := t.Postprocess(ctx, item, payload)
		if err != nil {
			return fmt.Errorf("%s postprocess: %w", t.Name(), err)
		}
		results = append(results, done)
		return nil
	}
	if err := t.Execute(ctx, items, yield); err != nil {
		return nil, fmt.Errorf("%s execute: %w", t.Name(), err)
	}
	log.Info("Task completed", "task", t.Name(), "items", len(results))
	return results, nil
}
