package workers

import (
	"context"
	"errors"
	"log/slog"

	wcerrors "workchat/errors"
	"workchat/notifications"
)

// Notifier drains the push job queue produced by the fan-out engine.
// Push delivery is best effort: a failed job is logged and dropped,
// never retried against the sender's request.
type Notifier struct {
	dispatcher *notifications.Dispatcher
	jobs       chan notifications.Job
	log        *slog.Logger
}

func NewNotifier(dispatcher *notifications.Dispatcher,
	jobs chan notifications.Job, log *slog.Logger) *Notifier {
	return &Notifier{dispatcher: dispatcher, jobs: jobs, log: log}
}

func (w *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			result, err := w.dispatcher.Dispatch(ctx, job)
			switch {
			case errors.Is(err, wcerrors.ErrGatewayCredentials):
				w.log.Warn("push dispatch suspended, delivering in-app only",
					"recipient", job.RecipientID)
			case err != nil:
				w.log.Warn("push dispatch failed",
					"recipient", job.RecipientID, "error", err)
			case len(result.InvalidTokens) > 0 || result.Delivered < result.Attempted:
				w.log.Debug("push dispatched with failures",
					"recipient", job.RecipientID,
					"delivered", result.Delivered,
					"attempted", result.Attempted,
					"pruned", len(result.InvalidTokens))
			}
		}
	}
}
