// Package bus implements the in-process message bus (C3) the Roundtable
// engine uses to let agents see each other's statements within a round
// (spec.md §4.3). The teacher has no multi-agent concept to ground this
// on directly; the concurrency idiom — one mutex, append under lock,
// bounded history with FIFO trim — is lifted from internal/session.Store's
// chat-turn bookkeeping and generalized to typed messages. Message ids are
// random UUIDs, not an increasing counter; order is the position in the log.
package bus

import (
	"sync"
	"time"

	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/google/uuid"
)

// maxHistory caps retained messages; beyond it the oldest non-summary
// message is evicted first, matching Store.AppendTurn's trim-on-write shape.
const maxHistory = 1000

// Filter selects which messages History should return.
type Filter func(domain.Message) bool

// All matches every message.
func All(domain.Message) bool { return true }

// ByRound matches messages from a specific round.
func ByRound(round int) Filter {
	return func(m domain.Message) bool { return m.Round == round }
}

// ByKind matches messages of a specific kind.
func ByKind(kind domain.MessageKind) Filter {
	return func(m domain.Message) bool { return m.Kind == kind }
}

// Bus is a thread-safe, bounded, append-only log of messages exchanged
// during one session's deliberation.
type Bus struct {
	mu       sync.Mutex
	messages []domain.Message
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Publish appends a message, assigning it an id and timestamp, and returns
// the stored copy.
func (b *Bus) Publish(m domain.Message) domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	b.messages = append(b.messages, m)
	b.trimLocked()
	return m
}

// trimLocked evicts the oldest non-summary message once the history
// exceeds maxHistory. Summary messages (role system, kind
// MessageKindSystem) are preserved as durable context.
func (b *Bus) trimLocked() {
	if len(b.messages) <= maxHistory {
		return
	}
	for i, m := range b.messages {
		if m.Kind != domain.MessageKindSystem {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			return
		}
	}
	// Nothing but summary messages: drop the oldest to bound growth anyway.
	b.messages = b.messages[1:]
}

// History returns a copy of every message matching filter, in publish order.
func (b *Bus) History(filter Filter) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if filter == nil {
		filter = All
	}
	out := make([]domain.Message, 0, len(b.messages))
	for _, m := range b.messages {
		if filter(m) {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of retained messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}
