package pipeline

import "github.com/pkg/errors"

var (
	ErrRegistryMustBeSet = errors.New("registry must be set")
	ErrRouterMustBeSet   = errors.New("router must be set")
	ErrMissingMarker     = errors.New("invocation must start with @@")
	ErrEmptyPluginName   = errors.New("plugin name must be set after @@")
	ErrUnbalancedQuote   = errors.New("unbalanced quote")
	ErrUnknownPlugin     = errors.New("invalid plugin")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrDependencyCycle   = errors.New("dependency cycle")
)
