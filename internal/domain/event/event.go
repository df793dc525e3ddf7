package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a reconciliation outcome observed by downstream billing and
// notification systems. Payload always carries the record id, order id,
// confidence score and resolution summary.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RecordID      string                 `json:"record_id"`
	OrderID       string                 `json:"order_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// New creates an event with a generated id and fresh correlation id.
func New(eventType Type, recordID, orderID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RecordID:      recordID,
		OrderID:       orderID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewWithCorrelation creates an event linked to an existing correlation chain,
// so every event of one order's pipeline run shares a correlation id.
func NewWithCorrelation(eventType Type, recordID, orderID string, payload map[string]interface{}, correlationID string) *Event {
	e := New(eventType, recordID, orderID, payload)
	e.CorrelationID = correlationID
	return e
}

// WithPayload returns a copy of the event with an added payload entry.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}
