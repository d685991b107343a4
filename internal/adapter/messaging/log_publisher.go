package messaging

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log instead of a broker. It is used
// when no AMQP URL is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.log.WithFields(logrus.Fields{"routing_key": routingKey, "payload": payload}).Info("event")
	return nil
}
