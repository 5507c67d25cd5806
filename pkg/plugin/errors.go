package plugin

import "github.com/pkg/errors"

var (
	ErrNameMustBeSet       = errors.New("plugin name must be set")
	ErrInvalidName         = errors.New("plugin name is invalid")
	ErrReservedName        = errors.New("plugin name is reserved")
	ErrInvalidVersion      = errors.New("plugin version must be major.minor.revision")
	ErrParseMustBeSet      = errors.New("parse callback must be set")
	ErrMainMustBeSet       = errors.New("main callback must be set")
	ErrSelfDependency      = errors.New("plugin cannot depend on itself")
	ErrDuplicateDependency = errors.New("dependency declared twice")
	ErrAlreadyRegistered   = errors.New("plugin already registered")
	ErrNotRegistered       = errors.New("plugin not registered")
	ErrStateNotFound       = errors.New("shared state not found")
	ErrStateType           = errors.New("shared state has unexpected type")
	ErrUnquotedOperator    = errors.New("unquoted shell operator in arguments")
	// ErrHelp is returned by parsers when the plugin help was requested and printed.
	ErrHelp = errors.New("help requested")
)
