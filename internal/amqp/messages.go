package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"kharcha/internal/core"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

type RecordKind string

const (
	KindIncome  RecordKind = "income"
	KindExpense RecordKind = "expense"
)

var ErrInvalidEvent = errors.New("invalid record event")

// RecordEvent announces a change to an income or expense row. Created and
// updated events carry the full row so consumers need no database access.
type RecordEvent struct {
	Type      EventType           `json:"type"`
	Kind      RecordKind          `json:"kind"`
	UserID    string              `json:"user_id"`
	RecordID  string              `json:"record_id"`
	Income    *core.IncomeRecord  `json:"income,omitempty"`
	Expense   *core.ExpenseRecord `json:"expense,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func NewIncomeEvent(t EventType, r core.IncomeRecord) *RecordEvent {
	ev := &RecordEvent{Type: t, Kind: KindIncome, UserID: r.UserID, RecordID: r.ID, Timestamp: time.Now()}
	if t != EventDeleted {
		ev.Income = &r
	}
	return ev
}

func NewExpenseEvent(t EventType, e core.ExpenseRecord) *RecordEvent {
	ev := &RecordEvent{Type: t, Kind: KindExpense, UserID: e.UserID, RecordID: e.ID, Timestamp: time.Now()}
	if t != EventDeleted {
		ev.Expense = &e
	}
	return ev
}

func (m *RecordEvent) Validate() error {
	switch m.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return ErrInvalidEvent
	}
	if m.UserID == "" || m.RecordID == "" {
		return ErrInvalidEvent
	}
	if m.Type == EventDeleted {
		return nil
	}
	switch m.Kind {
	case KindIncome:
		if m.Income == nil {
			return ErrInvalidEvent
		}
	case KindExpense:
		if m.Expense == nil {
			return ErrInvalidEvent
		}
	default:
		return ErrInvalidEvent
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordEventFromJSON decodes and validates an event.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var msg RecordEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
