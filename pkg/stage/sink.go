package stage

import (
	"context"
)

// AddSink adds a final step calling sinkFn for every input value.
func AddSink[I any](p *Pipeline, name string, input *Step[I], sinkFn func(ctx context.Context, input I) error) error {
	if p == nil {
		return ErrPipelineMustBeSet
	}
	if input == nil {
		return ErrInputMustBeSet
	}

	p.addGoFn(name, func(ctx context.Context, errC chan<- error) {
		for {
			select {
			case <-ctx.Done():
				errC <- ctx.Err()

				return
			case in, ok := <-input.Output:
				if !ok {
					return
				}
				err := sinkFn(ctx, in)
				if err != nil {
					errC <- err

					return
				}
			}
		}
	})

	return nil
}

// Collect adds a sink appending every input value to a slice. The slice is complete once
// Run returned without error.
func Collect[I any](p *Pipeline, name string, input *Step[I]) (*[]I, error) {
	res := &[]I{}
	err := AddSink(p, name, input, func(_ context.Context, in I) error {
		*res = append(*res, in)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
