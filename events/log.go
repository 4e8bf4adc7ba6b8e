package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		fields := logrus.Fields{
			"event_id":   e.ID,
			"event_type": e.Type,
			"agent_id":   e.AgentID,
		}
		if e.FromTier != "" {
			fields["from_tier"] = e.FromTier
		}
		if e.ToTier != "" {
			fields["to_tier"] = e.ToTier
		}
		if e.Amount != 0 {
			fields["amount"] = int64(e.Amount)
			fields["tickets"] = e.Tickets
			fields["booking_id"] = e.BookingID
		}
		if e.Quarter != "" {
			fields["quarter"] = e.Quarter
		}
		p.log.WithFields(fields).Info("event published")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
