package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tells the consumer which handler a message goes to.
type MessageType string

const (
	TypePaymentRecorded MessageType = "payment_recorded"
	TypeStarChanged     MessageType = "star_changed"
)

// Message is the envelope published for every debtor event. It carries ids
// only; the worker reads the full record from the database.
type Message struct {
	Type      MessageType `json:"type"`
	PaymentID int64       `json:"payment_id,omitempty"`
	DebtorID  string      `json:"debtor_id"`
	Starred   bool        `json:"starred,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewPaymentRecordedMessage announces a stored payment.
func NewPaymentRecordedMessage(paymentID int64, debtorID string) *Message {
	return &Message{
		Type:      TypePaymentRecorded,
		PaymentID: paymentID,
		DebtorID:  debtorID,
		Timestamp: time.Now(),
	}
}

// NewStarChangedMessage announces a changed starred flag.
func NewStarChangedMessage(debtorID string, starred bool) *Message {
	return &Message{
		Type:      TypeStarChanged,
		DebtorID:  debtorID,
		Starred:   starred,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes and checks a message.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case TypePaymentRecorded:
		if msg.PaymentID <= 0 {
			return nil, fmt.Errorf("payment message without payment id")
		}
	case TypeStarChanged:
		if msg.DebtorID == "" {
			return nil, fmt.Errorf("star message without debtor id")
		}
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return &msg, nil
}
