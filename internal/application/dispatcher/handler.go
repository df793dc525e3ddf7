package dispatcher

import (
	"context"

	"github.com/forkline/reconciliation/internal/domain/event"
)

// Handler processes reconciliation events at the ledger/notification boundary.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging.
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}
