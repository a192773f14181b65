package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

const incomeColumns = "id, user_id, amount_cents, date, source_id, account_type, description, carryover_period, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanIncome(s scanner) (core.IncomeRecord, error) {
	var (
		rec       core.IncomeRecord
		date      string
		carryover sql.NullString
		created   string
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Amount.Cents, &date, &rec.SourceID,
		&rec.AccountType, &rec.Description, &carryover, &created); err != nil {
		return core.IncomeRecord{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return core.IncomeRecord{}, err
	}
	rec.Date = d
	rec.CarryoverPeriod = carryover.String
	rec.CreatedAt = parseTime(created)
	return rec, nil
}

func (r *Repository) ListIncome(ctx context.Context, f storage.Filter) ([]core.IncomeRecord, error) {
	query, args := rangeClause("SELECT "+incomeColumns+" FROM income WHERE user_id = ?", []any{f.UserID}, f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query income: %w", err)
	}
	defer rows.Close()

	out := []core.IncomeRecord{}
	for rows.Next() {
		rec, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) GetIncome(ctx context.Context, userID, id string) (core.IncomeRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+incomeColumns+" FROM income WHERE user_id = ? AND id = ?", userID, id)
	rec, err := scanIncome(row)
	if err != nil {
		return core.IncomeRecord{}, mapErr(err)
	}
	return rec, nil
}

// InsertIncome writes every row in one transaction.
func (r *Repository) InsertIncome(ctx context.Context, rows ...core.IncomeRecord) ([]core.IncomeRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin income insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO income ("+incomeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare income insert: %w", err)
	}
	defer stmt.Close()

	out := make([]core.IncomeRecord, 0, len(rows))
	for _, rec := range rows {
		r.stamp(&rec.ID, &rec.CreatedAt)
		var carryover sql.NullString
		if rec.CarryoverPeriod != "" {
			carryover = sql.NullString{String: rec.CarryoverPeriod, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.UserID, rec.Amount.Cents, rec.Date.String(),
			rec.SourceID, rec.AccountType, rec.Description, carryover, rec.CreatedAt.Format(timeLayout)); err != nil {
			return nil, fmt.Errorf("insert income: %w", mapErr(err))
		}
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit income insert: %w", err)
	}
	slog.DebugContext(ctx, "Income rows inserted", "count", len(out))
	return out, nil
}

func (r *Repository) UpdateIncome(ctx context.Context, rec core.IncomeRecord) (core.IncomeRecord, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE income SET amount_cents = ?, date = ?, source_id = ?, account_type = ?, description = ?
		 WHERE user_id = ? AND id = ?`,
		rec.Amount.Cents, rec.Date.String(), rec.SourceID, rec.AccountType, rec.Description, rec.UserID, rec.ID)
	if err != nil {
		return core.IncomeRecord{}, fmt.Errorf("update income: %w", mapErr(err))
	}
	if err := checkAffected(res); err != nil {
		return core.IncomeRecord{}, err
	}
	return r.GetIncome(ctx, rec.UserID, rec.ID)
}

func (r *Repository) DeleteIncome(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM income WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return checkAffected(res)
}

const expenseColumns = "id, user_id, amount_cents, date, category_id, account_type, item, description, created_at"

func scanExpense(s scanner) (core.ExpenseRecord, error) {
	var (
		rec      core.ExpenseRecord
		date     string
		category sql.NullString
		created  string
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Amount.Cents, &date, &category,
		&rec.AccountType, &rec.Item, &rec.Description, &created); err != nil {
		return core.ExpenseRecord{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	rec.Date = d
	rec.CategoryID = category.String
	rec.CreatedAt = parseTime(created)
	return rec, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) ListExpenses(ctx context.Context, f storage.Filter) ([]core.ExpenseRecord, error) {
	query, args := rangeClause("SELECT "+expenseColumns+" FROM expenses WHERE user_id = ?", []any{f.UserID}, f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.ExpenseRecord{}
	for rows.Next() {
		rec, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? AND id = ?", userID, id)
	rec, err := scanExpense(row)
	if err != nil {
		return core.ExpenseRecord{}, mapErr(err)
	}
	return rec, nil
}

func (r *Repository) InsertExpenses(ctx context.Context, rows ...core.ExpenseRecord) ([]core.ExpenseRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin expense insert: %w", err)
	}
	defer tx.Rollback()

	out := make([]core.ExpenseRecord, 0, len(rows))
	for _, rec := range rows {
		r.stamp(&rec.ID, &rec.CreatedAt)
		if _, err := tx.ExecContext(ctx, "INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			rec.ID, rec.UserID, rec.Amount.Cents, rec.Date.String(), nullable(rec.CategoryID),
			rec.AccountType, rec.Item, rec.Description, rec.CreatedAt.Format(timeLayout)); err != nil {
			return nil, fmt.Errorf("insert expense: %w", mapErr(err))
		}
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expense insert: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount_cents = ?, date = ?, category_id = ?, account_type = ?, item = ?, description = ?
		 WHERE user_id = ? AND id = ?`,
		rec.Amount.Cents, rec.Date.String(), nullable(rec.CategoryID), rec.AccountType, rec.Item, rec.Description,
		rec.UserID, rec.ID)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("update expense: %w", mapErr(err))
	}
	if err := checkAffected(res); err != nil {
		return core.ExpenseRecord{}, err
	}
	return r.GetExpense(ctx, rec.UserID, rec.ID)
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return checkAffected(res)
}
