package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
)

// Routing keys on the exchange.
const (
	RoutingTransactionCreated = "transaction.created"
)

// MaterializeRequest asks a worker to materialize one user's recurring templates.
// A nil TargetDate means "today" on the worker's clock.
type MaterializeRequest struct {
	RequestID  string     `json:"request_id"`
	UserID     string     `json:"user_id"`
	TargetDate *core.Date `json:"target_date,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func NewMaterializeRequest(userID string, target *core.Date) *MaterializeRequest {
	return &MaterializeRequest{
		RequestID:  uuid.NewString(),
		UserID:     userID,
		TargetDate: target,
		Timestamp:  time.Now().UTC(),
	}
}

func (m *MaterializeRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MaterializeRequestFromJSON decodes and checks a request body.
func MaterializeRequestFromJSON(data []byte) (*MaterializeRequest, error) {
	var msg MaterializeRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("materialize request without user_id")
	}
	return &msg, nil
}

// TransactionCreatedEvent carries only identifiers; consumers load the row themselves.
type TransactionCreatedEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionCreatedEvent(id, userID string) *TransactionCreatedEvent {
	return &TransactionCreatedEvent{
		ID:        id,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

func (e *TransactionCreatedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransactionCreatedEventFromJSON(data []byte) (*TransactionCreatedEvent, error) {
	var ev TransactionCreatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
