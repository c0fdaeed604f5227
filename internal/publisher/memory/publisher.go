// Package memory provides an in-memory event publisher for testing.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event is one captured publication.
type Event struct {
	Channel string
	Payload any
}

// Publisher records published events for inspection.
type Publisher struct {
	mu     sync.Mutex
	events []Event
	nextID int
}

// New constructs a Publisher.
func New() *Publisher { return &Publisher{} }

// Publish appends the event and returns a synthetic message id.
func (p *Publisher) Publish(_ context.Context, channel string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Channel: channel, Payload: payload})
	p.nextID++
	return fmt.Sprintf("mem-%d", p.nextID), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
