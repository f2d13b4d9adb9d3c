package kafka

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Header keys carried on merge messages.
const (
	HeaderEventType   = "event_type"
	HeaderRequestID   = "request_id"
	HeaderOperatorID  = "operator_id"
	HeaderTraceParent = "traceparent"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// MergeCommand asks the service to merge two users. Forward defaults to the
// configured default when omitted.
type MergeCommand struct {
	AbsorberID string `json:"absorber_id"`
	AbsorbeeID string `json:"absorbee_id"`
	Forward    *bool  `json:"forward,omitempty"`
	Deactivate bool   `json:"deactivate"`
	OperatorID string `json:"operator_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// ParseMergeCommand parses the message value as a merge command.
func (m *IncomingMessage) ParseMergeCommand() (*MergeCommand, error) {
	var cmd MergeCommand
	if err := json.Unmarshal(m.Value, &cmd); err != nil {
		return nil, errors.Wrap(err, "parse merge command")
	}
	if cmd.OperatorID == "" {
		cmd.OperatorID = m.Headers[HeaderOperatorID]
	}
	if cmd.RequestID == "" {
		cmd.RequestID = m.Headers[HeaderRequestID]
	}
	return &cmd, nil
}

// Request converts the command into a merge request.
func (c *MergeCommand) Request(defaultForward bool) models.MergeRequest {
	forward := defaultForward
	if c.Forward != nil {
		forward = *c.Forward
	}
	return models.MergeRequest{
		AbsorberID: c.AbsorberID,
		AbsorbeeID: c.AbsorbeeID,
		Forward:    forward,
		Deactivate: c.Deactivate,
	}
}

// MergeEvent announces a committed merge.
type MergeEvent struct {
	EventType   string    `json:"event_type"`
	MergeID     string    `json:"merge_id"`
	AbsorberID  string    `json:"absorber_id"`
	AbsorbeeID  string    `json:"absorbee_id"`
	Applied     int       `json:"applied"`
	Skipped     int       `json:"skipped"`
	Reconciled  int       `json:"reconciled"`
	Forwarded   bool      `json:"forwarded"`
	Deactivated bool      `json:"deactivated"`
	OperatorID  string    `json:"operator_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
