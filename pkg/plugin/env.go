package plugin

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

// Env is what the pipeline hands to every callback.
type Env struct {
	Out    output.Sink
	Logger *zap.Logger
	State  *State
}

// NewEnv creates an env. A nil logger is replaced by a no-op logger.
func NewEnv(out output.Sink, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Env{
		Out:    out,
		Logger: logger,
		State:  NewState(),
	}
}

// For returns a copy of the env whose logger is named after the plugin.
func (e *Env) For(name string) *Env {
	return &Env{
		Out:    e.Out,
		Logger: e.Logger.Named(name),
		State:  e.State,
	}
}

// Send records a line on the stdout stream.
func (e *Env) Send(text string) {
	e.Out.Send(output.Stdout, text)
}

// Progress records a line on the stderr stream.
func (e *Env) Progress(text string) {
	e.Out.Send(output.Stderr, text)
}

// State is the process wide state plugins share with the plugins running after them.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState creates an empty state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]

	return v, ok
}

// Lookup returns the value stored under key converted to T.
func Lookup[T any](s *State, key string) (T, error) {
	var zero T

	v, ok := s.Get(key)
	if !ok {
		return zero, errors.Wrapf(ErrStateNotFound, "%q", key)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.Wrapf(ErrStateType, "%q: %T", key, v)
	}

	return typed, nil
}
