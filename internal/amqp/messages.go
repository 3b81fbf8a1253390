package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	// EventTransactionsImported is emitted once per account after a sync or
	// import batch that created at least one transaction.
	EventTransactionsImported EventType = "transactions.imported"
	// EventTransactionSaved is emitted after a manual create or update.
	EventTransactionSaved     EventType = "transaction.saved"
	EventTransactionDeleted   EventType = "transaction.deleted"
)

// Event is a lightweight notification. Consumers fetch details from the
// store by id.
type Event struct {
	Type          EventType `json:"type"`
	UserID        int64     `json:"user_id"`
	AccountID     int64     `json:"account_id"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Count         int       `json:"count,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionsImported(userID, accountID int64, count int) *Event {
	return &Event{
		Type:      EventTransactionsImported,
		UserID:    userID,
		AccountID: accountID,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

func NewTransactionSaved(userID, accountID, transactionID int64) *Event {
	return &Event{
		Type:          EventTransactionSaved,
		UserID:        userID,
		AccountID:     accountID,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

func NewTransactionDeleted(userID, accountID, transactionID int64) *Event {
	return &Event{
		Type:          EventTransactionDeleted,
		UserID:        userID,
		AccountID:     accountID,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects unknown types.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventTransactionsImported, EventTransactionSaved, EventTransactionDeleted:
		return &e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}
