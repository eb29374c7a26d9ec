// Package bus implements the process-local message bus used by agents to
// exchange typed messages. The bus keeps an append-only log in publish order;
// subscriber callbacks run synchronously inside Publish and must not block.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/models"
)

// Subscriber is a callback invoked for each delivered message. Callbacks run
// to completion before Publish returns; heavy work belongs in a runner, not
// here. A panicking subscriber is recovered and logged; it never propagates
// to the publisher.
type Subscriber func(msg models.AgentMessage)

// Filter selects messages from the log. Zero-valued fields match everything.
type Filter struct {
	From             models.AgentRole
	To               models.AgentRole
	Type             models.MessageType
	AfterTimestamp   time.Time
	RelatedToFinding string
}

// MessageBus is a multi-producer multi-consumer bus with a totally ordered
// log. The log is the only shared mutable structure in a scan and is guarded
// by a single mutex.
type MessageBus struct {
	mu          sync.Mutex
	log         []models.AgentMessage
	byID        map[string]int // message id → log index
	subscribers map[models.AgentRole][]Subscriber
}

// New creates an empty bus.
func New() *MessageBus {
	return &MessageBus{
		byID:        make(map[string]int),
		subscribers: make(map[models.AgentRole][]Subscriber),
	}
}

// Subscribe registers a callback for messages addressed to role (or to
// broadcast). Multiple callbacks per role are permitted.
func (b *MessageBus) Subscribe(role models.AgentRole, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[role] = append(b.subscribers[role], fn)
}

// Publish appends msg to the log and delivers it synchronously. Messages
// addressed to broadcast reach every subscriber; otherwise only subscribers
// of the target role. Missing id/timestamp are filled in, making the log a
// total order per process.
func (b *MessageBus) Publish(msg models.AgentMessage) models.AgentMessage {
	b.mu.Lock()
	if msg.ID == "" {
		msg.ID = ident.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	// A reply must reference a message already in the log; a dangling
	// reference is cleared so the message enters as a thread root.
	if msg.InReplyTo != "" {
		if _, ok := b.byID[msg.InReplyTo]; !ok {
			slog.Warn("Clearing reply reference to unknown message",
				"message_id", msg.ID, "in_reply_to", msg.InReplyTo, "type", msg.Type)
			msg.InReplyTo = ""
		}
	}
	b.byID[msg.ID] = len(b.log)
	b.log = append(b.log, msg)

	var targets []Subscriber
	if msg.To == models.RoleBroadcast {
		for _, subs := range b.subscribers {
			targets = append(targets, subs...)
		}
	} else {
		targets = append(targets, b.subscribers[msg.To]...)
	}
	b.mu.Unlock()

	for _, fn := range targets {
		b.deliver(fn, msg)
	}
	return msg
}

// deliver runs one subscriber callback, containing panics.
func (b *MessageBus) deliver(fn Subscriber, msg models.AgentMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bus subscriber panicked, message dropped for this subscriber",
				"message_id", msg.ID, "type", msg.Type, "panic", r)
		}
	}()
	fn(msg)
}

// Messages returns a stable-order snapshot of the log filtered by f.
func (b *MessageBus) Messages(f Filter) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.AgentMessage
	for _, msg := range b.log {
		if !b.matchesLocked(&msg, &f) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (b *MessageBus) matchesLocked(msg *models.AgentMessage, f *Filter) bool {
	if f.From != "" && msg.From != f.From {
		return false
	}
	if f.To != "" && msg.To != f.To {
		return false
	}
	if f.Type != "" && msg.Type != f.Type {
		return false
	}
	if !f.AfterTimestamp.IsZero() && !msg.Timestamp.After(f.AfterTimestamp) {
		return false
	}
	if f.RelatedToFinding != "" && !b.inThreadLocked(msg, f.RelatedToFinding) {
		return false
	}
	return true
}

// Thread returns all messages in the thread of a finding: those whose content
// references it plus those transitively replying to such a message, in
// publish order. Single pass over the log; replies always follow their
// parents, so one forward sweep closes the transitive set.
func (b *MessageBus) Thread(findingID string) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	inThread := make(map[string]bool)
	var out []models.AgentMessage
	for _, msg := range b.log {
		if msg.FindingID() == findingID || (msg.InReplyTo != "" && inThread[msg.InReplyTo]) {
			inThread[msg.ID] = true
			out = append(out, msg)
		}
	}
	return out
}

// inThreadLocked reports whether msg belongs to the thread of findingID by
// walking the reply chain upward.
func (b *MessageBus) inThreadLocked(msg *models.AgentMessage, findingID string) bool {
	cur := msg
	for {
		if cur.FindingID() == findingID {
			return true
		}
		if cur.InReplyTo == "" {
			return false
		}
		idx, ok := b.byID[cur.InReplyTo]
		if !ok {
			return false
		}
		cur = &b.log[idx]
	}
}

// Len returns the number of messages published so far.
func (b *MessageBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}
