package storage

import (
	"context"
	"errors"

	"kharcha/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness rule
	// (duplicate taxonomy name, duplicate email, carryover already applied).
	ErrConflict = errors.New("conflict")
)

type Order int

const (
	OrderDateDesc Order = iota
	OrderDateAsc
)

// Filter scopes a record query. UserID is mandatory; From is inclusive and
// To exclusive, either may be zero for an open bound.
type Filter struct {
	UserID string
	From   core.Date
	To     core.Date
	Order  Order
}

// ForPeriod builds a filter covering p.
func ForPeriod(userID string, p core.Period) Filter {
	from, to := p.Range()
	return Filter{UserID: userID, From: from, To: to}
}

// Ports for the data access gateway. Every call is scoped by user id;
// implementations never return rows owned by another user.
type (
	IncomeStore interface {
		ListIncome(ctx context.Context, f Filter) ([]core.IncomeRecord, error)
		GetIncome(ctx context.Context, userID, id string) (core.IncomeRecord, error)
		// InsertIncome stores all rows or none.
		InsertIncome(ctx context.Context, rows ...core.IncomeRecord) ([]core.IncomeRecord, error)
		UpdateIncome(ctx context.Context, r core.IncomeRecord) (core.IncomeRecord, error)
		DeleteIncome(ctx context.Context, userID, id string) error
	}

	ExpenseStore interface {
		ListExpenses(ctx context.Context, f Filter) ([]core.ExpenseRecord, error)
		GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error)
		InsertExpenses(ctx context.Context, rows ...core.ExpenseRecord) ([]core.ExpenseRecord, error)
		UpdateExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error)
		DeleteExpense(ctx context.Context, userID, id string) error
	}

	// TaxonomyStore serves categories, income sources and account types.
	TaxonomyStore interface {
		ListTaxa(ctx context.Context, userID string, kind core.TaxonKind) ([]core.Taxon, error)
		GetTaxon(ctx context.Context, userID string, kind core.TaxonKind, id string) (core.Taxon, error)
		InsertTaxon(ctx context.Context, t core.Taxon) (core.Taxon, error)
		UpdateTaxon(ctx context.Context, t core.Taxon) (core.Taxon, error)
		DeleteTaxon(ctx context.Context, userID string, kind core.TaxonKind, id string) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// Store is the full gateway a backend provides.
	Store interface {
		IncomeStore
		ExpenseStore
		TaxonomyStore
		UserStore
		Ping(ctx context.Context) error
		Close() error
	}
)
