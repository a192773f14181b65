package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/storage"
	"kharcha/internal/storage/memory"
	"kharcha/internal/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func money(c int64) core.Money { return core.Money{Cents: c} }

// spyStore counts writes and can fail income inserts.
type spyStore struct {
	*memory.Store
	taxonWrites  atomic.Int32
	incomeWrites atomic.Int32
	failInsert   error
	insertGate   chan struct{} // when set, income inserts wait for it or ctx
	insertEnter  chan struct{}
	listTaxa     func(n int) bool // returns false to hide rows on the n-th call
	listCalls    atomic.Int32
}

func newSpy() *spyStore { return &spyStore{Store: memory.New()} }

func (s *spyStore) InsertTaxon(ctx context.Context, t core.Taxon) (core.Taxon, error) {
	s.taxonWrites.Add(1)
	return s.Store.InsertTaxon(ctx, t)
}

func (s *spyStore) UpdateTaxon(ctx context.Context, t core.Taxon) (core.Taxon, error) {
	s.taxonWrites.Add(1)
	return s.Store.UpdateTaxon(ctx, t)
}

func (s *spyStore) InsertIncome(ctx context.Context, rows ...core.IncomeRecord) ([]core.IncomeRecord, error) {
	s.incomeWrites.Add(1)
	if s.insertGate != nil {
		s.insertEnter <- struct{}{}
		select {
		case <-s.insertGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failInsert != nil {
		return nil, s.failInsert
	}
	return s.Store.InsertIncome(ctx, rows...)
}

func (s *spyStore) ListTaxa(ctx context.Context, userID string, kind core.TaxonKind) ([]core.Taxon, error) {
	n := int(s.listCalls.Add(1))
	if s.listTaxa != nil && !s.listTaxa(n) {
		return nil, nil
	}
	return s.Store.ListTaxa(ctx, userID, kind)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.RecordEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []*amqp.RecordEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.RecordEvent(nil), p.events...)
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingInvalidator) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[userID]++
}

func (c *countingInvalidator) Count(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[userID]
}

// fixture is one user with Cash, Bank, UNION and SBI accounts, a Salary
// source and a Food category.
type fixture struct {
	store    *spyStore
	userID   string
	salary   core.Taxon
	food     core.Taxon
	accounts []core.Taxon
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := newSpy()
	u := storagetest.User(t, s, "ana@example.com")

	taxon := func(kind core.TaxonKind, name string) core.Taxon {
		tx, err := s.Store.InsertTaxon(ctx, core.Taxon{UserID: u.ID, Kind: kind, Name: name})
		require.NoError(t, err)
		return tx
	}
	f := &fixture{store: s, userID: u.ID}
	for _, name := range []string{"Cash", "Bank", "UNION", "SBI"} {
		f.accounts = append(f.accounts, taxon(core.KindAccountType, name))
	}
	f.salary = taxon(core.KindIncomeSource, "Salary")
	f.food = taxon(core.KindCategory, "Food")
	return f
}

func (f *fixture) income(t *testing.T, account string, amount int64, d core.Date) core.IncomeRecord {
	t.Helper()
	rows, err := f.store.Store.InsertIncome(context.Background(), core.IncomeRecord{
		UserID: f.userID, Amount: money(amount), Date: d, SourceID: f.salary.ID, AccountType: account,
	})
	require.NoError(t, err)
	return rows[0]
}

func (f *fixture) expense(t *testing.T, account string, amount int64, d core.Date) core.ExpenseRecord {
	t.Helper()
	rows, err := f.store.Store.InsertExpenses(context.Background(), core.ExpenseRecord{
		UserID: f.userID, Amount: money(amount), Date: d, AccountType: account, Item: "item",
	})
	require.NoError(t, err)
	return rows[0]
}

var errBoom = errors.New("boom")

var _ storage.Store = (*spyStore)(nil)
