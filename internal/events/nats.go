package events

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
)

// Subject hierarchy for lifecycle events.
//
//	mq.events.job.{id}  -- events for one job row
//	mq.events.all       -- every event
const (
	eventJobPrefix  = "mq.events.job."
	eventAllSubject = "mq.events.all"
)

func eventJobSubject(jobID int64) string {
	return eventJobPrefix + strconv.FormatInt(jobID, 10)
}

// NATSPublisher implements Publisher over core NATS pub/sub.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher wraps an established NATS connection. The caller owns the
// connection's lifetime.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// PublishJobEvent publishes the event to its job subject and the global
// subject.
func (p *NATSPublisher) PublishJobEvent(event *JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if event.JobID != 0 {
		if err := p.nc.Publish(eventJobSubject(event.JobID), data); err != nil {
			return fmt.Errorf("publish job event: %w", err)
		}
	}
	if err := p.nc.Publish(eventAllSubject, data); err != nil {
		return fmt.Errorf("publish global event: %w", err)
	}
	return nil
}
