package module

import (
	"context"
)

// Module defines the contract for a self-contained collaborator that talks
// to the rest of the system only through the bus.
type Module interface {
	// Name returns a unique identifier for the module.
	Name() string

	// Boot is called during application startup. This is the phase for
	// subscribing to topics and starting background processes.
	Boot(ctx context.Context) error

	// Shutdown is called during graceful application shutdown.
	// This is the phase for unsubscribing and stopping background processes.
	Shutdown(ctx context.Context) error
}

// BaseModule provides default no-op implementations for Module methods.
// Modules can embed this to avoid implementing methods they don't need.
type BaseModule struct{}

func (m *BaseModule) Boot(ctx context.Context) error     { return nil }
func (m *BaseModule) Shutdown(ctx context.Context) error { return nil }
