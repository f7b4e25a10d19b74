package ports

import (
	"context"

	"github.com/quantummint/qmintd/internal/core/domain"
)

// EventBus fans protocol events out to registered handlers. Handlers run
// sequentially per event on the bus dispatch routine and must not block.
type EventBus interface {
	Publish(ctx context.Context, events ...domain.Event) error
	RegisterHandler(handler func(domain.Event))
	Close() error
}
