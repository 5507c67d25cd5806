package stage

import (
	"context"
	"sync"
)

// Pipeline is a dataflow of steps.
type Pipeline struct {
	ctx      context.Context
	errcList *errorChans
	goFn     []func(ctx context.Context)
	mu       sync.Mutex
	ran      bool
}

// New creates an empty dataflow bound to ctx.
func New(ctx context.Context) *Pipeline {
	return &Pipeline{
		ctx:      ctx,
		errcList: &errorChans{},
	}
}

func (p *Pipeline) addGoFn(name string, fn func(ctx context.Context, errC chan<- error)) {
	errC := make(chan error, 1)
	p.errcList.add(newErrorChan(name, errC))
	p.goFn = append(p.goFn, func(ctx context.Context) {
		defer close(errC)
		fn(ctx, errC)
	})
}

// Run starts every step and waits for all of them to finish. It returns the first error.
func (p *Pipeline) Run() error {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()

		return ErrAlreadyRun
	}
	p.ran = true
	p.mu.Unlock()

	dCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	for _, fn := range p.goFn {
		go fn(dCtx)
	}

	// Keep draining after the first error so that Run returns once every step stopped.
	var first error
	for err := range mergeErrors(p.errcList.list...) {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}

	return first
}
