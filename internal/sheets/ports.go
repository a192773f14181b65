package sheets

import (
	"context"
	"time"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
)

// Row is one line of the record change log mirrored to a spreadsheet.
type Row struct {
	Timestamp   time.Time
	Event       amqp.EventType
	Kind        amqp.RecordKind
	RecordID    string
	UserID      string
	Date        core.Date
	AccountType string
	Reference   string // income source id or expense category id
	Label       string // expense item, empty for income
	Description string
	Amount      core.Money
}

// Header names the columns Values returns, in order.
var Header = []any{"Timestamp", "Event", "Kind", "Record", "User", "Date", "Account", "Reference", "Item", "Description", "Amount"}

// Values renders the row for a USER_ENTERED write.
func (r Row) Values() []any {
	date, amount := "", ""
	if !r.Date.IsZero() {
		date = r.Date.String()
	}
	if !r.Amount.IsZero() {
		amount = r.Amount.String()
	}
	return []any{
		r.Timestamp.UTC().Format(time.RFC3339),
		string(r.Event),
		string(r.Kind),
		r.RecordID,
		r.UserID,
		date,
		r.AccountType,
		r.Reference,
		r.Label,
		r.Description,
		amount,
	}
}

// RowFromEvent flattens a record event. Deleted events carry no row data
// and only identify the record.
func RowFromEvent(ev *amqp.RecordEvent) Row {
	row := Row{
		Timestamp: ev.Timestamp,
		Event:     ev.Type,
		Kind:      ev.Kind,
		RecordID:  ev.RecordID,
		UserID:    ev.UserID,
	}
	switch {
	case ev.Income != nil:
		row.Date = ev.Income.Date
		row.AccountType = ev.Income.AccountType
		row.Reference = ev.Income.SourceID
		row.Description = ev.Income.Description
		row.Amount = ev.Income.Amount
	case ev.Expense != nil:
		row.Date = ev.Expense.Date
		row.AccountType = ev.Expense.AccountType
		row.Reference = ev.Expense.CategoryID
		row.Label = ev.Expense.Item
		row.Description = ev.Expense.Description
		row.Amount = ev.Expense.Amount
	}
	return row
}

// RowWriter is the outbound port for the change log.
type RowWriter interface {
	Append(ctx context.Context, row Row) (rowRef string, err error)
}
