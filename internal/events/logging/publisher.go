// Package logging provides an event publisher that writes events to the
// log instead of a broker. It is used when Kafka is disabled.
package logging

import (
	"context"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sirupsen/logrus"
)

type Publisher struct {
	log logrus.FieldLogger
}

func NewPublisher(log logrus.FieldLogger) *Publisher {
	return &Publisher{log: log}
}

func (p *Publisher) Publish(_ context.Context, topic string, event any) error {
	entry := p.log.WithField("topic", topic)
	if k, ok := event.(interfaces.Keyed); ok {
		entry = entry.WithField("key", k.Key())
	}
	entry.WithField("event", event).Debug("event published")
	return nil
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
