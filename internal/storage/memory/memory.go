// Package memory is an in-process implementation of the storage ports,
// used by tests and by the "memory" backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	users    []core.User
	taxa     []core.Taxon
	income   []core.IncomeRecord
	expenses []core.ExpenseRecord
	now      func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if created.IsZero() {
		*created = s.now()
	}
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, fmt.Errorf("email %q: %w", u.Email, storage.ErrConflict)
		}
	}
	s.stamp(&u.ID, &u.CreatedAt)
	s.users = append(s.users, u)
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (s *Store) ListUserIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for _, u := range s.users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// --- taxonomy ---

func (s *Store) ListTaxa(_ context.Context, userID string, kind core.TaxonKind) ([]core.Taxon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Taxon
	for _, t := range s.taxa {
		if t.UserID == userID && t.Kind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) GetTaxon(_ context.Context, userID string, kind core.TaxonKind, id string) (core.Taxon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.findTaxon(userID, kind, id); i >= 0 {
		return s.taxa[i], nil
	}
	return core.Taxon{}, storage.ErrNotFound
}

func (s *Store) InsertTaxon(_ context.Context, t core.Taxon) (core.Taxon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Name = core.NormalizeName(t.Name)
	if s.nameTaken(t) {
		return core.Taxon{}, fmt.Errorf("%s %q: %w", t.Kind, t.Name, storage.ErrConflict)
	}
	s.stamp(&t.ID, &t.CreatedAt)
	s.taxa = append(s.taxa, t)
	return t, nil
}

func (s *Store) UpdateTaxon(_ context.Context, t core.Taxon) (core.Taxon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findTaxon(t.UserID, t.Kind, t.ID)
	if i < 0 {
		return core.Taxon{}, storage.ErrNotFound
	}
	t.Name = core.NormalizeName(t.Name)
	if s.nameTaken(t) {
		return core.Taxon{}, fmt.Errorf("%s %q: %w", t.Kind, t.Name, storage.ErrConflict)
	}
	t.CreatedAt = s.taxa[i].CreatedAt
	s.taxa[i] = t
	return t, nil
}

func (s *Store) DeleteTaxon(_ context.Context, userID string, kind core.TaxonKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findTaxon(userID, kind, id)
	if i < 0 {
		return storage.ErrNotFound
	}
	s.taxa = append(s.taxa[:i], s.taxa[i+1:]...)
	return nil
}

func (s *Store) findTaxon(userID string, kind core.TaxonKind, id string) int {
	for i, t := range s.taxa {
		if t.ID == id && t.UserID == userID && t.Kind == kind {
			return i
		}
	}
	return -1
}

func (s *Store) nameTaken(t core.Taxon) bool {
	for _, existing := range s.taxa {
		if existing.ID != t.ID && existing.UserID == t.UserID && existing.Kind == t.Kind && core.SameName(existing.Name, t.Name) {
			return true
		}
	}
	return false
}

// --- income ---

func (s *Store) ListIncome(_ context.Context, f storage.Filter) ([]core.IncomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRecords(s.income, f, func(r core.IncomeRecord) string { return r.UserID }), nil
}

func (s *Store) GetIncome(_ context.Context, userID, id string) (core.IncomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.income {
		if r.ID == id && r.UserID == userID {
			return r, nil
		}
	}
	return core.IncomeRecord{}, storage.ErrNotFound
}

func (s *Store) InsertIncome(_ context.Context, rows ...core.IncomeRecord) ([]core.IncomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type carryKey struct{ user, period, account string }
	seen := map[carryKey]bool{}
	for _, r := range s.income {
		if r.IsCarryover() {
			seen[carryKey{r.UserID, r.CarryoverPeriod, r.AccountType}] = true
		}
	}
	out := make([]core.IncomeRecord, 0, len(rows))
	for _, r := range rows {
		if r.IsCarryover() {
			k := carryKey{r.UserID, r.CarryoverPeriod, r.AccountType}
			if seen[k] {
				return nil, fmt.Errorf("carryover %s/%s: %w", r.CarryoverPeriod, r.AccountType, storage.ErrConflict)
			}
			seen[k] = true
		}
		s.stamp(&r.ID, &r.CreatedAt)
		out = append(out, r)
	}
	s.income = append(s.income, out...)
	return out, nil
}

func (s *Store) UpdateIncome(_ context.Context, r core.IncomeRecord) (core.IncomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.income {
		if existing.ID == r.ID && existing.UserID == r.UserID {
			r.CreatedAt = existing.CreatedAt
			r.CarryoverPeriod = existing.CarryoverPeriod
			s.income[i] = r
			return r, nil
		}
	}
	return core.IncomeRecord{}, storage.ErrNotFound
}

func (s *Store) DeleteIncome(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.income {
		if r.ID == id && r.UserID == userID {
			s.income = append(s.income[:i], s.income[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

// --- expenses ---

func (s *Store) ListExpenses(_ context.Context, f storage.Filter) ([]core.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRecords(s.expenses, f, func(e core.ExpenseRecord) string { return e.UserID }), nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.expenses {
		if e.ID == id && e.UserID == userID {
			return e, nil
		}
	}
	return core.ExpenseRecord{}, storage.ErrNotFound
}

func (s *Store) InsertExpenses(_ context.Context, rows ...core.ExpenseRecord) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ExpenseRecord, 0, len(rows))
	for _, e := range rows {
		s.stamp(&e.ID, &e.CreatedAt)
		out = append(out, e)
	}
	s.expenses = append(s.expenses, out...)
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.expenses {
		if existing.ID == e.ID && existing.UserID == e.UserID {
			e.CreatedAt = existing.CreatedAt
			s.expenses[i] = e
			return e, nil
		}
	}
	return core.ExpenseRecord{}, storage.ErrNotFound
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id && e.UserID == userID {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

// filterRecords copies rows matching f. Descending order lists the most
// recently inserted row first among equal dates, matching the sqlite
// backend's created_at tiebreak.
func filterRecords[R interface{ RecordDate() core.Date }](rows []R, f storage.Filter, owner func(R) string) []R {
	out := make([]R, 0)
	for _, r := range rows {
		if owner(r) != f.UserID {
			continue
		}
		d := r.RecordDate()
		if !f.From.IsZero() && d.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && !d.Before(f.To.Time) {
			continue
		}
		out = append(out, r)
	}
	if f.Order == storage.OrderDateAsc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].RecordDate().Before(out[j].RecordDate().Time) })
		return out
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordDate().After(out[j].RecordDate().Time) })
	return out
}
