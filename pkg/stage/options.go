package stage

// StepOption configures a step.
type StepOption[O any] func(s *Step[O])

// StepConcurrency sets how many goroutines run the step function.
func StepConcurrency[O any](concurrent int) StepOption[O] {
	return func(s *Step[O]) {
		s.concurrent = concurrent
	}
}

// StepBuffer sets the capacity of the output channel of the step.
func StepBuffer[O any](size int) StepOption[O] {
	return func(s *Step[O]) {
		s.bufferSize = size
	}
}
