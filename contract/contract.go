//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"workchat/domain/event"
)

// Worker doesn't protect itself; supervision lives one level up.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live connection's inbox for domain events.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the connection index: session id to sink, canonical id
// to sessions, room id to subscribed sessions. Only the presence and
// realtime layers mutate it; broadcast logic reads it.
type IRegistry interface {
	Register(sessionID, employeeID string, sink EventSink)
	Unregister(sessionID string) (employeeID string, ok bool)
	Subscribe(sessionID string, roomID uuid.UUID)
	Unsubscribe(sessionID string, roomID uuid.UUID)

	SinksForRoom(roomID uuid.UUID) []EventSink
	SinksForRoomExcept(roomID uuid.UUID, sessionID string) []EventSink
	SinksForIdentity(employeeID string) []EventSink
	AllSinks() []EventSink
	IdentityOf(sessionID string) (string, bool)
}
