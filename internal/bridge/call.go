// Package bridge orchestrates outbound phone calls: it prepares a gateway
// room, spawns the agent-worker subprocess, places the SIP leg and tracks
// the resulting call until hangup.
package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle position of a call.
type State string

const (
	StatePending State = "pending" // accepted, room/worker being prepared
	StateRinging State = "ringing" // SIP leg placed, waiting for answer
	StateActive  State = "active"  // callee answered, conversation running
	StateEnded   State = "ended"   // hung up or worker exited
	StateFailed  State = "failed"  // a step in the sequence failed
)

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Call is one outbound call tracked by the bridge. Values returned from the
// store are snapshots; only the store mutates them.
type Call struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	PhoneNumber string    `json:"phone_number"`
	Room        string    `json:"room"`
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	AnsweredAt  time.Time `json:"answered_at,omitzero"`
	EndedAt     time.Time `json:"ended_at,omitzero"`
}

// newCallID returns a short random identifier. Call state is ephemeral, so
// uniqueness within one process lifetime is all that is required.
func newCallID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Store is an ephemeral, thread-safe registry of calls. State never
// survives a restart, matching the original's lack of persistence.
type Store struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

// NewStore creates an empty call store.
func NewStore() *Store {
	return &Store{calls: make(map[string]*Call)}
}

// Create registers a new pending call and returns its snapshot. The room
// name is derived from the call ID, one room per call.
func (s *Store) Create(agentID, phoneNumber string) Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := newCallID()
	call := &Call{
		ID:          id,
		AgentID:     agentID,
		PhoneNumber: phoneNumber,
		Room:        "call-" + id,
		State:       StatePending,
		CreatedAt:   time.Now(),
	}
	s.calls[call.ID] = call
	return *call
}

// Get returns a snapshot of the call, if it exists.
func (s *Store) Get(id string) (Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.calls[id]
	if !ok {
		return Call{}, false
	}
	return *call, true
}

// List returns snapshots of all calls, newest first.
func (s *Store) List() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Call, 0, len(s.calls))
	for _, call := range s.calls {
		out = append(out, *call)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SetState advances a call to the given state. Transitions out of a
// terminal state are ignored so that hangup and worker-exit racing each
// other stays idempotent.
func (s *Store) SetState(id string, state State) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[id]
	if !ok {
		return Call{}, false
	}
	if call.State.terminal() {
		return *call, true
	}
	call.State = state
	switch state {
	case StateActive:
		call.AnsweredAt = time.Now()
	case StateEnded:
		call.EndedAt = time.Now()
	}
	return *call, true
}

// Fail marks a call failed with the given reason.
func (s *Store) Fail(id string, reason error) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[id]
	if !ok {
		return Call{}, false
	}
	if call.State.terminal() {
		return *call, true
	}
	call.State = StateFailed
	call.Error = reason.Error()
	call.EndedAt = time.Now()
	return *call, true
}
