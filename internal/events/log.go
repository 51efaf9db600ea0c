package events

import (
	"context"
	"log/slog"
)

// LogBus writes events to a structured logger. Used when no broker is configured.
type LogBus struct {
	Log *slog.Logger
}

func (b LogBus) Emit(ctx context.Context, evs ...Event) error {
	log := b.Log
	if log == nil {
		log = slog.Default()
	}
	for _, e := range evs {
		log.InfoContext(ctx, "domain event", "type", e.Type, "team_id", e.TeamID, "event_id", e.ID)
	}
	return nil
}
