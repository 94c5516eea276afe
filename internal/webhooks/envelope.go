package webhooks

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps event data in the body posted to callback URLs.
type Envelope struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	TenantID string    `json:"tenantId"`
	TS       time.Time `json:"ts"`
	Data     any       `json:"data"`
}

// NewEnvelope stamps data with an id and the current time.
func NewEnvelope(eventType, tenantID string, data any) Envelope {
	return Envelope{
		ID:       fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC(),
		Data:     data,
	}
}

func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }
