package capability

import "errors"

// Registry errors.
var (
	// ErrHandlerNil is returned when registering a nil handler.
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrHandlerNameEmpty is returned when a handler has no name.
	ErrHandlerNameEmpty = errors.New("handler name cannot be empty")

	// ErrHandlerRegistered is returned when registering a duplicate handler.
	ErrHandlerRegistered = errors.New("handler already registered")

	// ErrCapabilityDeclared is returned when a schema item name collides
	// with an already declared capability.
	ErrCapabilityDeclared = errors.New("capability already declared")

	// ErrCommandInvalid is returned when a direct route command does not
	// start with a slash.
	ErrCommandInvalid = errors.New("direct command must start with '/'")

	// ErrRouteIncomplete is returned when a direct route is missing its
	// target tool or op.
	ErrRouteIncomplete = errors.New("direct route must name a tool and an op")
)
