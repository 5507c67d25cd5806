package stage

import (
	"context"

	"github.com/pkg/errors"
)

// Step is the output of a stage, consumed by the next one.
type Step[O any] struct {
	Name       string
	Output     chan O
	concurrent int
	bufferSize int
}

func newStep[O any](name string, opts ...StepOption[O]) *Step[O] {
	step := &Step[O]{Name: name}
	for _, opt := range opts {
		opt(step)
	}
	step.Output = make(chan O, step.bufferSize)

	return step
}

// Emit sends v on ch unless ctx is done first.
func Emit[O any](ctx context.Context, ch chan<- O, v O) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- v:
		return nil
	}
}

// AddRootStep adds a step producing values with stepFn. The output is closed when stepFn returns.
func AddRootStep[O any](p *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	step := newStep(name, opts...)
	p.addGoFn(name, func(ctx context.Context, errC chan<- error) {
		defer close(step.Output)
		err := stepFn(ctx, step.Output)
		if err != nil {
			errC <- err
		}
	})

	return step, nil
}

// AddRootSlice adds a root step emitting every element of values.
func AddRootSlice[O any](p *Pipeline, name string, values []O, opts ...StepOption[O]) (*Step[O], error) {
	return AddRootStep(p, name, func(ctx context.Context, rootChan chan<- O) error {
		for _, v := range values {
			err := Emit(ctx, rootChan, v)
			if err != nil {
				return errors.Wrap(err, "unable to emit value")
			}
		}

		return nil
	}, opts...)
}
