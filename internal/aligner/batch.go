package aligner

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/pkg/stage"
)

// Job is one alignment of a batch.
type Job struct {
	Reference string
	Input     string
	Output    string
	Options   []string
}

// RunAll aligns jobs with at most workers alignments running at once. The first failure
// cancels the alignments still queued.
func RunAll(ctx context.Context, runner Runner, jobs []Job, workers int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	pipe := stage.New(ctx)
	queued, err := stage.AddRootSlice(pipe, "jobs", jobs)
	if err != nil {
		return err
	}
	aligned, err := stage.AddStepOneToOne(pipe, "align", queued, func(ctx context.Context, job Job) (Job, error) {
		logger.Info("aligning reads", zap.String("input", job.Input), zap.String("output", job.Output))

		return job, runner.Align(ctx, job.Reference, job.Input, job.Output, job.Options)
	}, stage.StepConcurrency[Job](workers))
	if err != nil {
		return err
	}
	err = stage.AddSink(pipe, "done", aligned, func(_ context.Context, job Job) error {
		logger.Debug("alignment done", zap.String("output", job.Output))

		return nil
	})
	if err != nil {
		return err
	}

	return errors.Wrap(pipe.Run(), "unable to align reads")
}
