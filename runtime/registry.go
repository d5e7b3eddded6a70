package runtime

import (
	"sync"

	"github.com/google/uuid"

	"workchat/contract"
)

type set map[string]struct{}

// Registry is the global connection index: O(1) from session id to
// sink, from canonical id to that person's live sessions, and from room
// id to subscribed sessions. Only the presence tracker and the realtime
// layer write to it; broadcast logic reads it.
type Registry struct {
	mu        sync.RWMutex
	sinks     map[string]contract.EventSink // session id -> sink
	identity  map[string]string             // session id -> employee id
	sessions  map[string]set                // employee id -> session ids
	roomSubs  map[uuid.UUID]set             // room id -> session ids
	roomsBySn map[string]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sinks:     make(map[string]contract.EventSink),
		identity:  make(map[string]string),
		sessions:  make(map[string]set),
		roomSubs:  make(map[uuid.UUID]set),
		roomsBySn: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Register binds a session to an identity. Rebinding a live session to
// someone else detaches it from the previous identity's set first, so
// events for the old identity never reach the new person's socket.
func (r *Registry) Register(sessionID, employeeID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.identity[sessionID]; ok && previous != employeeID {
		if sessions, found := r.sessions[previous]; found {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(r.sessions, previous)
			}
		}
	}

	r.sinks[sessionID] = sink
	r.identity[sessionID] = employeeID
	if _, ok := r.sessions[employeeID]; !ok {
		r.sessions[employeeID] = make(set)
	}
	r.sessions[employeeID][sessionID] = struct{}{}
}

// Unregister removes a session everywhere, including any room
// subscriptions it still holds, so no empty sets linger.
func (r *Registry) Unregister(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	employeeID, ok := r.identity[sessionID]
	delete(r.sinks, sessionID)
	delete(r.identity, sessionID)

	if sessions, found := r.sessions[employeeID]; found {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.sessions, employeeID)
		}
	}
	for roomID := range r.roomsBySn[sessionID] {
		if subs, found := r.roomSubs[roomID]; found {
			delete(subs, sessionID)
			if len(subs) == 0 {
				delete(r.roomSubs, roomID)
			}
		}
	}
	delete(r.roomsBySn, sessionID)
	return employeeID, ok
}

func (r *Registry) Subscribe(sessionID string, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomSubs[roomID]; !ok {
		r.roomSubs[roomID] = make(set)
	}
	r.roomSubs[roomID][sessionID] = struct{}{}
	if _, ok := r.roomsBySn[sessionID]; !ok {
		r.roomsBySn[sessionID] = make(map[uuid.UUID]struct{})
	}
	r.roomsBySn[sessionID][roomID] = struct{}{}
}

func (r *Registry) Unsubscribe(sessionID string, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.roomSubs[roomID]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(r.roomSubs, roomID)
		}
	}
	if rooms, ok := r.roomsBySn[sessionID]; ok {
		delete(rooms, roomID)
	}
}

func (r *Registry) SinksForRoom(roomID uuid.UUID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.EventSink
	for sessionID := range r.roomSubs[roomID] {
		if sink, ok := r.sinks[sessionID]; ok {
			active = append(active, sink)
		}
	}
	return active
}

// SinksForRoomExcept serves typing relays, which go to everyone in the
// room but the originating session.
func (r *Registry) SinksForRoomExcept(roomID uuid.UUID, sessionID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.EventSink
	for id := range r.roomSubs[roomID] {
		if id == sessionID {
			continue
		}
		if sink, ok := r.sinks[id]; ok {
			active = append(active, sink)
		}
	}
	return active
}

func (r *Registry) SinksForIdentity(employeeID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.EventSink
	for sessionID := range r.sessions[employeeID] {
		if sink, ok := r.sinks[sessionID]; ok {
			active = append(active, sink)
		}
	}
	return active
}

func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]contract.EventSink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		active = append(active, sink)
	}
	return active
}

func (r *Registry) IdentityOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	employeeID, ok := r.identity[sessionID]
	return employeeID, ok
}
