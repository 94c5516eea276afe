// Package events publishes run lifecycle events to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// DefaultTopic carries run lifecycle events.
const DefaultTopic = "routeopt.runs"

type Event struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	TenantID string          `json:"tenantId"`
	RunID    string          `json:"runId"`
	TS       time.Time       `json:"ts"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh id and the current time. data is
// marshaled to JSON.
func New(eventType, tenantID, runID string, data any) (Event, error) {
	evt := Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		RunID:    runID,
		TS:       time.Now().UTC(),
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		evt.Data = b
	}
	return evt, nil
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi publishes to every publisher and combines their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, evt))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Close())
	}
	return err
}
