package worker

import (
	"context"
	"errors"
	"testing"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/metrics"
	"kharcha/internal/sheets/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceConsumer struct {
	events []*amqp.RecordEvent
	errs   []error
	err    error
}

func (c *sliceConsumer) Consume(ctx context.Context, handler func(context.Context, *amqp.RecordEvent) error) error {
	for _, ev := range c.events {
		c.errs = append(c.errs, handler(ctx, ev))
	}
	return c.err
}

func incomeEvent(id string) *amqp.RecordEvent {
	return amqp.NewIncomeEvent(amqp.EventCreated, core.IncomeRecord{
		ID: id, UserID: "u1", Amount: core.Money{Cents: 5000}, Date: core.NewDate(2025, 2, 1),
		SourceID: "s1", AccountType: "Bank",
	})
}

func TestSyncWorker_HandleEvent(t *testing.T) {
	rows := memory.New()
	m := metrics.New()
	w := NewSyncWorker(rows, m)

	require.NoError(t, w.HandleEvent(context.Background(), incomeEvent("i1")))

	got := rows.Rows()
	require.Len(t, got, 1)
	assert.Equal(t, "i1", got[0].RecordID)
	assert.Equal(t, "Bank", got[0].AccountType)
	assert.Equal(t, int64(5000), got[0].Amount.Cents)
}

func TestSyncWorker_HandleEventFailure(t *testing.T) {
	rows := memory.New()
	rows.FailWith(errors.New("quota exceeded"))
	w := NewSyncWorker(rows, nil)

	err := w.HandleEvent(context.Background(), incomeEvent("i1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.ErrorIs(t, w.HandleEvent(context.Background(), nil), amqp.ErrInvalidEvent)
}

func TestSyncWorker_Run(t *testing.T) {
	rows := memory.New()
	m := metrics.New()
	w := NewSyncWorker(rows, m)
	c := &sliceConsumer{
		events: []*amqp.RecordEvent{incomeEvent("i1"), incomeEvent("i2")},
		err:    context.Canceled,
	}

	require.NoError(t, w.Run(context.Background(), c))
	assert.Len(t, rows.Rows(), 2)
	assert.Equal(t, []error{nil, nil}, c.errs)

	c = &sliceConsumer{err: errors.New("channel closed")}
	assert.Error(t, w.Run(context.Background(), c))
}

func TestSyncWorker_Metrics(t *testing.T) {
	rows := memory.New()
	m := metrics.New()
	w := NewSyncWorker(rows, m)

	require.NoError(t, w.HandleEvent(context.Background(), incomeEvent("i1")))
	rows.FailWith(errors.New("down"))
	require.Error(t, w.HandleEvent(context.Background(), incomeEvent("i2")))

	count, err := testutil.GatherAndCount(m.Registry(), "kharcha_record_events_consumed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
