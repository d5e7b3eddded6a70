package notifications

import (
	"context"
	"log/slog"
)

// LogGateway is the default gateway for deployments without provider
// credentials: payloads are logged and counted as delivered, so the
// rest of the pipeline behaves exactly as in production.
type LogGateway struct {
	log *slog.Logger
}

func NewLogGateway(log *slog.Logger) LogGateway {
	return LogGateway{log: log}
}

func (g LogGateway) Send(_ context.Context, token string, payload Payload) error {
	g.log.Debug("push (log gateway)",
		"token", shortToken(token),
		"title", payload.Title,
		"badge", payload.Badge)
	return nil
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
