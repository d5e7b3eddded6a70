//go:generate go run go.uber.org/mock/mockgen -source=dispatcher.go -destination=../mocks/mock_dispatcher.go -package=mocks
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/samber/lo"

	"workchat/domain"
	wcerrors "workchat/errors"
	"workchat/repositories"
)

// bodyLimit caps notification bodies; longer texts are cut with an
// ellipsis so the lock screen preview stays readable.
const bodyLimit = 100

// Payload is the provider-agnostic push notification shape.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
	Badge int
}

// PushGateway delivers one payload to one device token. Implementations
// return ErrTokenInvalid for tokens the provider reports as permanently
// dead, and ErrGatewayCredentials when the provider rejects our own
// credentials.
type PushGateway interface {
	Send(ctx context.Context, token string, payload Payload) error
}

// Job pairs a payload with its recipient; produced by the fan-out
// engine, consumed by the notifier worker.
type Job struct {
	RecipientID string
	Payload     Payload
}

// DispatchResult reports what a single dispatch attempt did.
type DispatchResult struct {
	Attempted     int
	Delivered     int
	InvalidTokens []string
}

// Dispatcher pushes payloads to every registered device of a recipient,
// pruning tokens the gateway rejects as invalid. After a credential
// failure it stops calling the gateway entirely until Reset, so a
// misconfigured deployment degrades to in-app delivery instead of
// hammering the provider.
type Dispatcher struct {
	gateway    PushGateway
	identities repositories.IIdentityRepository
	log        *slog.Logger
	degraded   bool
}

func NewDispatcher(gateway PushGateway, identities repositories.IIdentityRepository, log *slog.Logger) *Dispatcher {
	return &Dispatcher{gateway: gateway, identities: identities, log: log}
}

// Degraded reports whether dispatching is suspended after a credential
// failure.
func (d *Dispatcher) Degraded() bool {
	return d.degraded
}

// Reset re-enables dispatching after credentials have been fixed.
func (d *Dispatcher) Reset() {
	d.degraded = false
}

func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (DispatchResult, error) {
	var result DispatchResult
	if d.degraded {
		return result, wcerrors.ErrGatewayCredentials
	}

	recipient, err := d.identities.Get(job.RecipientID)
	if err != nil {
		return result, err
	}
	if len(recipient.PushTokens) == 0 {
		return result, nil
	}

	for _, token := range recipient.PushTokens {
		result.Attempted++
		err := d.gateway.Send(ctx, token, job.Payload)
		switch {
		case err == nil:
			result.Delivered++
		case errors.Is(err, wcerrors.ErrGatewayCredentials):
			d.degraded = true
			d.log.Error("push gateway rejected credentials, suspending dispatch",
				"recipient", job.RecipientID)
			return result, err
		case errors.Is(err, wcerrors.ErrTokenInvalid):
			result.InvalidTokens = append(result.InvalidTokens, token)
		default:
			d.log.Warn("push delivery failed",
				"recipient", job.RecipientID, "error", err)
		}
	}

	if len(result.InvalidTokens) > 0 {
		d.pruneTokens(job.RecipientID, result.InvalidTokens)
	}
	return result, nil
}

func (d *Dispatcher) pruneTokens(employeeID string, dead []string) {
	_, err := d.identities.Update(employeeID, func(identity *domain.Identity) error {
		identity.PushTokens = lo.Without(identity.PushTokens, dead...)
		return nil
	})
	if err != nil {
		d.log.Warn("failed to prune invalid push tokens",
			"employee", employeeID, "count", len(dead), "error", err)
		return
	}
	d.log.Info("pruned invalid push tokens", "employee", employeeID, "count", len(dead))
}

// BuildMessagePayload formats the standard new-message notification:
// direct rooms title with the sender's name, group rooms with
// "<sender> in <group>".
func BuildMessagePayload(message domain.Message, room domain.Room, unread int) Payload {
	title := message.SenderName
	if room.Kind == domain.RoomGroup {
		title = message.SenderName + " in " + room.Name
	}
	return Payload{
		Title: title,
		Body:  truncate(message.Text, bodyLimit),
		Data: map[string]string{
			"type":       "new-message",
			"roomId":     room.ID.String(),
			"roomType":   string(room.Kind),
			"senderId":   message.SenderID,
			"messageId":  message.ID.String(),
			"senderName": message.SenderName,
		},
		Badge: unread,
	}
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
