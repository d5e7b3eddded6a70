package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIdentityNotFound = fmt.Errorf("identity not found")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrMessageNotFound  = fmt.Errorf("message not found")

	ErrAccessDenied = fmt.Errorf("access denied: not a room participant")

	ErrSelfChat       = fmt.Errorf("direct room requires two distinct people")
	ErrGroupTooSmall  = fmt.Errorf("group room requires at least 2 unique participants")
	ErrNameRequired   = fmt.Errorf("group name is required")
	ErrNotGroup       = fmt.Errorf("operation only allowed for group rooms")
	ErrAlreadyMember  = fmt.Errorf("member is already in this group")
	ErrNotMember      = fmt.Errorf("member is not in this group")
	ErrLastMembers    = fmt.Errorf("group must keep at least 2 members")
	ErrEmptyBody      = fmt.Errorf("message body is required")
	ErrBadAttachment  = fmt.Errorf("attachment metadata is invalid")
	ErrInvalidPayload = fmt.Errorf("invalid payload")

	// ErrInternalConsistency reports a room whose stored participant set
	// contradicts its own invariants (e.g. a direct room where the only
	// "other" participant resolves to the caller).
	ErrInternalConsistency = fmt.Errorf("room state is internally inconsistent")

	ErrStorage = fmt.Errorf("storage failure")

	// ErrGatewayCredentials is the degraded-mode signal from the push
	// gateway. It never unwinds a message send.
	ErrGatewayCredentials = fmt.Errorf("push gateway credentials rejected")
	ErrTokenInvalid       = fmt.Errorf("push token permanently invalid")

	ErrInvalidAPIKey = fmt.Errorf("invalid api key")
	ErrWorkerPanic   = fmt.Errorf("worker panic")

	// ErrSlowConsumer marks a session whose outbound buffer is full;
	// the frame is dropped for that session only.
	ErrSlowConsumer = fmt.Errorf("session outbound buffer full")
)

// HTTPStatus maps the domain taxonomy onto REST status codes.
// Unknown errors are treated as storage-level failures (5xx-equivalent)
// so internals never leak to clients.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrIdentityNotFound),
		errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSelfChat),
		errors.Is(err, ErrGroupTooSmall),
		errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrNotGroup),
		errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrNotMember),
		errors.Is(err, ErrLastMembers),
		errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrBadAttachment),
		errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
