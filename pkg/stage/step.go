package stage

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func sequentialOneToOneFn[I any, O any](ctx context.Context, goIdx int, input *Step[I], output *Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d:", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}
			out, err := oneToOneFn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d:", goIdx)
			}

			// Check the context again so that running goroutines stop feeding the next step.
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "go routine %d:", goIdx)
			case output.Output <- out:
			}
		}
	}
}

func concurrentOneToOneFn[I any, O any](ctx context.Context, input *Step[I], output *Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(output.concurrent)
	// Each consumer stops as soon as one of them fails.
	for goIdx := 0; goIdx < output.concurrent; goIdx++ {
		localGoIdx := goIdx
		errGrp.Go(func() error {
			return sequentialOneToOneFn(dCtx, localGoIdx, input, output, oneToOneFn)
		})
	}

	return errGrp.Wait()
}

func oneToOne[I any, O any](ctx context.Context, input *Step[I], output *Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	if output.concurrent <= 1 {
		return sequentialOneToOneFn(ctx, 0, input, output, oneToOneFn)
	}

	return concurrentOneToOneFn(ctx, input, output, oneToOneFn)
}

// AddStepOneToOne adds a step mapping every input value to one output value.
func AddStepOneToOne[I any, O any](p *Pipeline, name string, input *Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	step := newStep(name, opts...)
	p.addGoFn(name, func(ctx context.Context, errC chan<- error) {
		defer close(step.Output)
		err := oneToOne(ctx, input, step, oneToOneFn)
		if err != nil {
			errC <- err
		}
	})

	return step, nil
}
