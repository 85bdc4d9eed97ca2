// Package memory records hot-lead events in process for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// Publisher stores published payloads for inspection and logs each one.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	logger   *zap.Logger
}

var _ lead.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a memory Publisher. A nil logger discards log output.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.Named("publisher")}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	p.mu.Unlock()

	fields := []zap.Field{zap.String("topic", topic), zap.String("message_id", id)}
	if ev, ok := payload.(lead.HotLeadEvent); ok {
		fields = append(fields, zap.String("lead_id", ev.LeadID), zap.Int("score", ev.Score))
	}
	p.logger.Info("event published", fields...)
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Topic returns the recorded publishes for one topic.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []PublishedMessage
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
