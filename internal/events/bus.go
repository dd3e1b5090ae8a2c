// Package events is the in-process pub/sub backbone. Dispatch is synchronous
// and isolated: a subscriber that errors or panics is recorded and logged,
// and the remaining subscribers still get the event.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Topics published by the runtime.
const (
	TopicSkillLog            = "skill.log"
	TopicTaskStatus          = "task.status"
	TopicAuditRecorded       = "audit.recorded"
	TopicConfirmationPending = "confirmation.pending"
)

// Handler receives one published event.
type Handler func(topic string, payload any) error

// Delivery records the outcome of one handler invocation.
type Delivery struct {
	Topic      string
	Subscriber int
	Err        error
	At         time.Time
}

// Bus is a topic-keyed subscriber list.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	// failures keeps the most recent handler failures for inspection.
	failures []Delivery
	logger   *slog.Logger
}

const maxFailureHistory = 100

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[int]Handler),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a handler for one topic and returns its unsubscribe
// function. Topic "*" receives every event.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers the payload to every subscriber of the topic plus the
// wildcard subscribers. Handler failures are captured, never propagated.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make(map[int]Handler, len(b.subs[topic])+len(b.subs["*"]))
	for id, fn := range b.subs[topic] {
		handlers[id] = fn
	}
	for id, fn := range b.subs["*"] {
		handlers[id] = fn
	}
	b.mu.RUnlock()

	for id, fn := range handlers {
		if err := b.deliver(topic, id, fn, payload); err != nil {
			b.recordFailure(Delivery{Topic: topic, Subscriber: id, Err: err, At: time.Now()})
		}
	}
}

func (b *Bus) deliver(topic string, id int, fn Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(topic, payload)
}

func (b *Bus) recordFailure(d Delivery) {
	b.logger.Warn("event handler failed",
		"topic", d.Topic,
		"subscriber", d.Subscriber,
		"error", d.Err,
	)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, d)
	if len(b.failures) > maxFailureHistory {
		b.failures = b.failures[len(b.failures)-maxFailureHistory:]
	}
}

// Failures returns a copy of the recent handler failure records.
func (b *Bus) Failures() []Delivery {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Delivery(nil), b.failures...)
}
