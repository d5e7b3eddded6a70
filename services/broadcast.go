package services

import (
	"context"
	"log/slog"

	"workchat/contract"
	"workchat/domain/event"
)

// broadcast pushes one event to every sink, best effort. A slow or dead
// sink only loses its own copy.
func broadcast(ctx context.Context, log *slog.Logger, sinks []contract.EventSink, evt event.DomainEvent) {
	for _, sink := range sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			log.Debug("event dropped", "event", evt.EventName(), "error", err)
		}
	}
}
