// Package comms provides the in-process message bus the controller uses to
// share agent updates, anomaly reports and signal events within a tick.
package comms

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names a stream of messages.
type Topic string

const (
	TopicTrafficLight Topic = "traffic_light_update"
	TopicVehicle      Topic = "vehicle_update"
	TopicDrone        Topic = "drone_update"
	TopicAnomaly      Topic = "anomaly_detected"
	TopicSignalEvent  Topic = "signal_event"
)

// DefaultHistory is how many messages each topic keeps.
const DefaultHistory = 100

// Message is the envelope for data published on the bus.
type Message struct {
	ID        string    `json:"id"`
	Topic     Topic     `json:"topic"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Handler is called synchronously for every message on a subscribed topic.
// Handlers must not publish to the topic they are subscribed to.
type Handler func(Message)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a publish/subscribe bus with bounded per-topic history.
type Bus struct {
	mu      sync.RWMutex
	history map[Topic][]Message
	subs    map[Topic][]subscription
	limit   int
	nextSub uint64
	tick    uint64
}

// NewBus creates a bus keeping up to limit messages per topic. A limit
// below one uses DefaultHistory.
func NewBus(limit int) *Bus {
	if limit < 1 {
		limit = DefaultHistory
	}
	return &Bus{
		history: make(map[Topic][]Message),
		subs:    make(map[Topic][]subscription),
		limit:   limit,
	}
}

// SetTick stamps subsequent messages with the given simulation tick.
func (b *Bus) SetTick(tick uint64) {
	b.mu.Lock()
	b.tick = tick
	b.mu.Unlock()
}

// Publish stores payload on topic and notifies subscribers in
// subscription order. It returns the stored message.
func (b *Bus) Publish(topic Topic, payload any) Message {
	b.mu.Lock()
	msg := Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Tick:      b.tick,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	h := append(b.history[topic], msg)
	if len(h) > b.limit {
		h = h[len(h)-b.limit:]
	}
	b.history[topic] = h

	// Copy so handlers run without the lock held.
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(msg)
	}
	return msg
}

// Subscribe registers handler for topic and returns a function that
// removes it. Calling the returned function more than once is safe.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	id := b.nextSub
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Messages returns the most recent messages on topic, oldest first. A count
// of zero or less returns all retained messages.
func (b *Bus) Messages(topic Topic, count int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h := b.history[topic]
	if count > 0 && count < len(h) {
		h = h[len(h)-count:]
	}
	out := make([]Message, len(h))
	copy(out, h)
	return out
}

// Topics returns every topic that currently holds messages.
func (b *Bus) Topics() []Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var topics []Topic
	for t, h := range b.history {
		if len(h) > 0 {
			topics = append(topics, t)
		}
	}
	return topics
}

// Clear drops all retained messages. Subscriptions are kept.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.history)
}
