// Package export renders a period snapshot as an xlsx workbook.
package export

import (
	"fmt"
	"io"

	"kharcha/internal/core"

	"github.com/xuri/excelize/v2"
)

const (
	SheetIncome   = "Income"
	SheetExpenses = "Expenses"
	SheetSummary  = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FileName is the download name for p ("kharcha-2025-03.xlsx").
func FileName(p core.Period) string {
	return fmt.Sprintf("kharcha-%s.xlsx", p.Key())
}

// Write renders snap as a three sheet workbook. Amounts are written as
// numbers in major units.
func Write(w io.Writer, snap core.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetIncome); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetExpenses, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := writeIncome(f, snap); err != nil {
		return err
	}
	if err := writeExpenses(f, snap); err != nil {
		return err
	}
	if err := writeSummary(f, snap); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeIncome(f *excelize.File, snap core.Snapshot) error {
	sources := core.NameIndex(snap.Sources)
	rows := [][]any{{"Date", "Source", "Account", "Description", "Amount"}}
	for _, r := range snap.Income {
		rows = append(rows, []any{r.Date.String(), sources[r.SourceID], r.AccountType, r.Description, r.Amount.Major()})
	}
	if err := setRows(f, SheetIncome, rows); err != nil {
		return err
	}
	return widths(f, SheetIncome, 12, 20, 14, 40, 12)
}

func writeExpenses(f *excelize.File, snap core.Snapshot) error {
	categories := core.NameIndex(snap.Categories)
	rows := [][]any{{"Date", "Item", "Category", "Account", "Description", "Amount"}}
	for _, e := range snap.Expenses {
		rows = append(rows, []any{e.Date.String(), e.Item, categories[e.CategoryID], e.AccountType, e.Description, e.Amount.Major()})
	}
	if err := setRows(f, SheetExpenses, rows); err != nil {
		return err
	}
	return widths(f, SheetExpenses, 12, 30, 18, 14, 40, 12)
}

func writeSummary(f *excelize.File, snap core.Snapshot) error {
	income := core.ComputeGrandTotal(snap.Income)
	expenses := core.ComputeGrandTotal(snap.Expenses)
	balances := core.ComputeAccountBalances(snap.Income, snap.Expenses, core.AccountNames(snap.AccountTypes))

	rows := [][]any{
		{"Period", snap.Period.Label()},
		{"Income", income.Major()},
		{"Expenses", expenses.Major()},
		{"Net", income.Sub(expenses).Major()},
		{},
		{"Account", "Income", "Expenses", "Balance"},
	}
	for _, b := range balances {
		rows = append(rows, []any{b.AccountType, b.Income.Major(), b.Expenses.Major(), b.Balance.Major()})
	}
	rows = append(rows, []any{}, []any{"Category", "Total"})
	for _, g := range core.ComputeTotals(core.ExpensesByCategory(snap.Expenses, core.NameIndex(snap.Categories))) {
		rows = append(rows, []any{g.Group, g.Total.Major()})
	}
	if err := setRows(f, SheetSummary, rows); err != nil {
		return err
	}
	return widths(f, SheetSummary, 20, 14, 14, 14)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func widths(f *excelize.File, sheet string, cols ...float64) error {
	for i, width := range cols {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("set %s width: %w", sheet, err)
		}
	}
	return nil
}
