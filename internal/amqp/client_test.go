package amqp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kharcha/internal/core"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	want := map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		3:  8 * time.Second,
		4:  16 * time.Second,
		5:  maxBackoff,
		12: maxBackoff,
	}
	for attempt, d := range want {
		t.Run(fmt.Sprintf("attempt_%d", attempt), func(t *testing.T) {
			assert.Equal(t, d, exponentialBackoff(attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	for _, err := range []error{
		amqp091.ErrClosed,
		fmt.Errorf("publish: %w", amqp091.ErrClosed),
		errors.New("dial tcp: connection refused"),
		errors.New("Exception (504) Reason: \"connection closed\""),
		errors.New("unexpected EOF"),
		errors.New("write: broken pipe"),
		errors.New("use of closed network connection"),
	} {
		assert.True(t, isConnectionError(err), "%v", err)
	}
	for _, err := range []error{nil, ErrInvalidEvent, errors.New("PRECONDITION_FAILED")} {
		assert.False(t, isConnectionError(err), "%v", err)
	}
}

func testClient() *Client {
	return &Client{exchangeName: "kharcha", queueName: "record_events"}
}

func TestClient_CircuitBreaker(t *testing.T) {
	t.Run("opens after repeated failures", func(t *testing.T) {
		c := testClient()
		assert.False(t, c.isCircuitOpen())
		for i := 0; i < maxFailures-1; i++ {
			c.recordFailure()
		}
		assert.False(t, c.isCircuitOpen(), "one failure short of the threshold")
		c.recordFailure()
		assert.True(t, c.isCircuitOpen())
	})

	t.Run("success closes and resets", func(t *testing.T) {
		c := testClient()
		for i := 0; i < maxFailures; i++ {
			c.recordFailure()
		}
		c.recordSuccess()
		assert.False(t, c.isCircuitOpen())
		assert.Zero(t, c.failureCount)
		assert.Equal(t, StateClosed, c.state)
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		c := testClient()
		c.state = StateOpen
		c.lastFailure = time.Now().Add(-openTimeout - time.Second)
		assert.False(t, c.isCircuitOpen())
		assert.Equal(t, StateHalfOpen, c.state)

		c.recordFailure()
		assert.Equal(t, StateOpen, c.state, "a failed half-open call reopens the circuit")
		assert.True(t, c.isCircuitOpen())
	})
}

func TestClient_Publish_Refused(t *testing.T) {
	ev := NewExpenseEvent(EventCreated, core.ExpenseRecord{ID: "e1", UserID: "u1"})

	c := testClient()
	c.state = StateOpen
	c.lastFailure = time.Now()
	err := c.Publish(context.Background(), ev)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "publish expense created")

	c = testClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Publish(ctx, ev), context.Canceled)
}

func TestNewIncomeEvent(t *testing.T) {
	rec := core.IncomeRecord{ID: "i1", UserID: "u1", Amount: core.Money{Cents: 500}}

	msg := NewIncomeEvent(EventCreated, rec)

	if msg.Kind != KindIncome || msg.RecordID != "i1" || msg.UserID != "u1" {
		t.Errorf("unexpected event %+v", msg)
	}
	if msg.Income == nil || msg.Income.Amount.Cents != 500 {
		t.Error("created event should carry the row")
	}
	if msg.Timestamp.IsZero() || time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}

	del := NewIncomeEvent(EventDeleted, rec)
	if del.Income != nil {
		t.Error("deleted event should not carry the row")
	}
	if err := del.Validate(); err != nil {
		t.Errorf("deleted event should validate: %v", err)
	}
}

func TestRecordEvent_JSON(t *testing.T) {
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := NewExpenseEvent(EventUpdated, core.ExpenseRecord{
		ID: "e1", UserID: "u1", Item: "Tea", Amount: core.Money{Cents: 120},
		Date: core.NewDate(2024, 1, 1), AccountType: "Cash",
	})
	msg.Timestamp = timestamp

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := RecordEventFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("RecordEventFromJSON() error = %v", err)
	}

	if parsed.Type != EventUpdated || parsed.Kind != KindExpense {
		t.Errorf("Parsed type/kind = %v/%v", parsed.Type, parsed.Kind)
	}
	if parsed.Expense == nil || parsed.Expense.Item != "Tea" || parsed.Expense.Amount.Cents != 120 {
		t.Errorf("Parsed expense = %+v", parsed.Expense)
	}
	if !parsed.Expense.Date.Equal(core.NewDate(2024, 1, 1).Time) {
		t.Errorf("Parsed date = %v", parsed.Expense.Date)
	}
	if !parsed.Timestamp.Equal(timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, timestamp)
	}
}

func TestRecordEvent_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad json":     `{"type": 5}`,
		"unknown type": `{"type":"moved","kind":"income","user_id":"u","record_id":"r"}`,
		"missing row":  `{"type":"created","kind":"income","user_id":"u","record_id":"r"}`,
		"missing user": `{"type":"deleted","kind":"income","record_id":"r"}`,
		"unknown kind": `{"type":"created","kind":"transfer","user_id":"u","record_id":"r"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := RecordEventFromJSON([]byte(body)); err == nil {
				t.Error("RecordEventFromJSON() should fail")
			}
		})
	}
}
