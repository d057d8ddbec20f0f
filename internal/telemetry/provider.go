package telemetry

import (
	"context"
)

// Provider produces readings from a device until the context is cancelled
// or the underlying link fails.
type Provider interface {
	Run(ctx context.Context, readings chan<- Reading) error
	Name() string
}
