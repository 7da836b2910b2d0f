// Package transcript follows agent conversations by polling the platform's
// message log and fanning new entries out to subscribers.
package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quickcall/quickcall/internal/agentapi"
	"github.com/quickcall/quickcall/internal/ctxlog"
)

// Entry is a display-ready transcript line.
type Entry struct {
	ID   string    `json:"id"`
	Role string    `json:"role"` // "user", "assistant" or "tool"
	Text string    `json:"text"`
	Tool string    `json:"tool,omitempty"`
	At   time.Time `json:"at"`
}

// FromMessage converts a platform message into an Entry. Internal message
// types that have no place in the panel view report ok=false.
func FromMessage(m agentapi.Message) (Entry, bool) {
	entry := Entry{ID: m.ID, At: m.Date}
	switch m.MessageType {
	case agentapi.MessageTypeUser:
		entry.Role = "user"
		entry.Text = m.Content
	case agentapi.MessageTypeAssistant:
		entry.Role = "assistant"
		entry.Text = m.Content
	case agentapi.MessageTypeToolCall:
		entry.Role = "tool"
		if m.ToolCall != nil {
			entry.Tool = m.ToolCall.Name
			entry.Text = m.ToolCall.Arguments
		}
	case agentapi.MessageTypeToolReturn:
		entry.Role = "tool"
		entry.Text = m.ToolReturn
	default:
		return Entry{}, false
	}
	return entry, true
}

// Source is the slice of the platform client the hub polls.
type Source interface {
	ListMessages(ctx context.Context, agentID, after string, limit int) ([]agentapi.Message, error)
}

// Hub runs one polling loop per watched agent and broadcasts new entries to
// that agent's subscribers. A watcher with no subscribers left is stopped.
type Hub struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	watchers map[string]*watcher
	closed   bool
}

// subscriptionBuffer bounds how far a slow subscriber may lag before
// entries are dropped for it.
const subscriptionBuffer = 64

// NewHub builds a hub polling the source at the given interval.
func NewHub(src Source, interval time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		src:      src,
		interval: interval,
		logger:   logger,
		watchers: make(map[string]*watcher),
	}
}

// Subscription delivers transcript entries for one agent on C until Close.
type Subscription struct {
	C <-chan Entry

	hub     *Hub
	agentID string
	ch      chan Entry
	once    sync.Once
}

// Close detaches the subscription. The entry channel is closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Subscribe starts following an agent's transcript. The first subscriber
// also receives the recent history the initial poll returns.
func (h *Hub) Subscribe(agentID string) *Subscription {
	sub := &Subscription{
		hub:     h,
		agentID: agentID,
		ch:      make(chan Entry, subscriptionBuffer),
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	w, ok := h.watchers[agentID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ctx = ctxlog.WithLogger(ctx, h.logger.With("agent_id", agentID))
		w = &watcher{agentID: agentID, cancel: cancel, subs: make(map[*Subscription]struct{})}
		h.watchers[agentID] = w
		go h.poll(ctx, w)
	}
	w.subs[sub] = struct{}{}
	return sub
}

// unsubscribe removes the subscription and stops an orphaned watcher.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		// Close already shut every channel down.
		return
	}
	w, ok := h.watchers[sub.agentID]
	if ok {
		delete(w.subs, sub)
		if len(w.subs) == 0 {
			w.cancel()
			delete(h.watchers, sub.agentID)
		}
	}
	close(sub.ch)
}

// Close stops all watchers and closes every subscription channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, w := range h.watchers {
		w.cancel()
		for sub := range w.subs {
			close(sub.ch)
		}
	}
	h.watchers = make(map[string]*watcher)
}

// watcher is the polling state of one agent.
type watcher struct {
	agentID string
	cancel  context.CancelFunc
	subs    map[*Subscription]struct{}
}

// poll fetches messages after the last-seen cursor on every tick and
// broadcasts the converted entries.
func (h *Hub) poll(ctx context.Context, w *watcher) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Transcript watcher started.")
	defer logger.Debug("Transcript watcher stopped.")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	cursor := ""
	for {
		messages, err := h.src.ListMessages(ctx, w.agentID, cursor, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Transcript poll failed.", "error", err)
		} else {
			for _, m := range messages {
				cursor = m.ID
				entry, ok := FromMessage(m)
				if !ok {
					continue
				}
				h.broadcast(w, entry, logger)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// broadcast delivers an entry to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (h *Hub) broadcast(w *watcher, entry Entry, logger *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		// Close ran while this poll was in flight; every channel is
		// already closed, so there is nobody left to deliver to.
		return
	}
	for sub := range w.subs {
		select {
		case sub.ch <- entry:
		default:
			logger.Warn("Dropping transcript entry for slow subscriber.", "entry_id", entry.ID)
		}
	}
}
