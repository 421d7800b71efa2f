package pipeline

import (
	"context"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

// Runner adapts Pipeline to the C11 worker's Runner contract, which only
// needs success/failure — the worker has no use for Result.MergedDocx or
// the publish result, both of which only matter to the interactive
// caller that gets a response body back.
type Runner struct {
	pipe *Pipeline
}

func NewRunner(pipe *Pipeline) *Runner {
	return &Runner{pipe: pipe}
}

func (r *Runner) Run(ctx context.Context, env *entity.Envelope, tracking *entity.TrackingRecord) error {
	_, err := r.pipe.Run(ctx, env, tracking)
	return err
}
