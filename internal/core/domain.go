package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindCategory     TaxonKind = "category"
	KindIncomeSource TaxonKind = "income_source"
	KindAccountType  TaxonKind = "account_type"
)

// CarryoverSourceName is the reserved income source tagging synthesized
// carryover rows.
const CarryoverSourceName = "Balance Carryover"

const (
	maxNameLength        = 50
	maxItemLength        = 100
	maxDescriptionLength = 200
)

type (
	TaxonKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		DisplayName  string    `json:"display_name"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"created_at"`
	}

	// Taxon is a user-defined name: an expense category, an income source
	// or an account type, depending on Kind.
	Taxon struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Kind      TaxonKind `json:"kind"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	IncomeRecord struct {
		ID          string `json:"id"`
		UserID      string `json:"user_id"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		SourceID    string `json:"source_id"`
		AccountType string `json:"account_type"` // account name at insertion time
		Description string `json:"description,omitempty"`
		// CarryoverPeriod is set ("2025-03") only on synthesized carryover rows.
		CarryoverPeriod string    `json:"carryover_period,omitempty"`
		CreatedAt       time.Time `json:"created_at"`
	}

	ExpenseRecord struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		Amount      Money     `json:"amount"`
		Date        Date      `json:"date"`
		CategoryID  string    `json:"category_id,omitempty"`
		AccountType string    `json:"account_type"`
		Item        string    `json:"item"`
		Description string    `json:"description,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrNameTooLong        = errors.New("name too long (max 50 characters)")
	ErrDuplicateName      = errors.New("name already exists")
	ErrReservedName       = errors.New("name is reserved")
	ErrEmptyItem          = errors.New("item cannot be empty")
	ErrItemTooLong        = errors.New("item too long (max 100 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyAccountType   = errors.New("account type is required")
	ErrUnknownAccountType = errors.New("unknown account type")
	ErrEmptySource        = errors.New("income source is required")
	ErrUnknownSource      = errors.New("unknown income source")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrInvalidKind        = errors.New("invalid taxonomy kind")
)

// IsValid reports whether k names one of the three taxonomy collections.
func (k TaxonKind) IsValid() bool {
	switch k {
	case KindCategory, KindIncomeSource, KindAccountType:
		return true
	default:
		return false
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NormalizeName trims surrounding whitespace and collapses inner runs of
// spaces, so " Food  Court " and "Food Court" compare equal.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// ValidateName checks a taxonomy name's shape (not its uniqueness).
func ValidateName(name string) error {
	name = NormalizeName(name)
	if name == "" {
		return invalid("name", ErrEmptyName)
	}
	if len([]rune(name)) > maxNameLength {
		return invalid("name", ErrNameTooLong)
	}
	return nil
}

// SameName compares two names the way uniqueness is enforced: trimmed and
// case-insensitive.
func SameName(a, b string) bool {
	return strings.EqualFold(NormalizeName(a), NormalizeName(b))
}

func (t Taxon) Validate() error {
	if !t.Kind.IsValid() {
		return invalid("kind", ErrInvalidKind)
	}
	return ValidateName(t.Name)
}

// IsCarryoverSource reports whether t is the reserved carryover income source.
func (t Taxon) IsCarryoverSource() bool {
	return t.Kind == KindIncomeSource && SameName(t.Name, CarryoverSourceName)
}

func (r IncomeRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if err := r.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if strings.TrimSpace(r.SourceID) == "" {
		return invalid("source_id", ErrEmptySource)
	}
	if strings.TrimSpace(r.AccountType) == "" {
		return invalid("account_type", ErrEmptyAccountType)
	}
	if len([]rune(r.Description)) > maxDescriptionLength {
		return invalid("description", ErrDescriptionTooLong)
	}
	return nil
}

// IsCarryover reports whether the row was synthesized by the carryover step.
func (r IncomeRecord) IsCarryover() bool {
	return r.CarryoverPeriod != ""
}

func (r ExpenseRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if err := r.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	item := strings.TrimSpace(r.Item)
	if item == "" {
		return invalid("item", ErrEmptyItem)
	}
	if len([]rune(item)) > maxItemLength {
		return invalid("item", ErrItemTooLong)
	}
	if strings.TrimSpace(r.AccountType) == "" {
		return invalid("account_type", ErrEmptyAccountType)
	}
	if len([]rune(r.Description)) > maxDescriptionLength {
		return invalid("description", ErrDescriptionTooLong)
	}
	return nil
}

// RecordDate and RecordAmount make both record kinds usable by the generic
// aggregation helpers.
func (r IncomeRecord) RecordDate() Date    { return r.Date }
func (r IncomeRecord) RecordAmount() Money { return r.Amount }

func (r ExpenseRecord) RecordDate() Date    { return r.Date }
func (r ExpenseRecord) RecordAmount() Money { return r.Amount }
