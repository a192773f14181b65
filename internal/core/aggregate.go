package core

import (
	"sort"
	"strconv"
)

// UncategorizedLabel groups expenses without a category.
const UncategorizedLabel = "Uncategorized"

type (
	// Amounted is anything carrying a money amount.
	Amounted interface {
		RecordAmount() Money
	}

	// Tagged is one amount under a grouping tag (category name, account
	// type, day of month...).
	Tagged struct {
		Tag    string
		Amount Money
	}

	GroupTotal struct {
		Group string `json:"group"`
		Total Money  `json:"total"`
	}

	totalsOptions struct {
		seed     []string
		dropZero bool
	}

	TotalsOption func(*totalsOptions)
)

func (t Tagged) RecordAmount() Money { return t.Amount }

// WithGroups pre-seeds groups in the given order so they appear even when no
// item carries their tag.
func WithGroups(groups ...string) TotalsOption {
	return func(o *totalsOptions) { o.seed = append(o.seed, groups...) }
}

// DropZero omits groups whose total is zero.
func DropZero() TotalsOption {
	return func(o *totalsOptions) { o.dropZero = true }
}

// ComputeTotals groups items by tag and sums each group. Groups are ordered
// by descending total; equal totals keep first-seen order (seeded groups
// count as seen first).
func ComputeTotals(items []Tagged, opts ...TotalsOption) []GroupTotal {
	var o totalsOptions
	for _, opt := range opts {
		opt(&o)
	}

	index := make(map[string]int, len(o.seed))
	out := make([]GroupTotal, 0, len(o.seed))
	add := func(tag string, amount Money) {
		i, ok := index[tag]
		if !ok {
			i = len(out)
			index[tag] = i
			out = append(out, GroupTotal{Group: tag})
		}
		out[i].Total = out[i].Total.Add(amount)
	}
	for _, g := range o.seed {
		add(g, Money{})
	}
	for _, it := range items {
		add(it.Tag, it.Amount)
	}

	if o.dropZero {
		kept := out[:0]
		for _, g := range out {
			if !g.Total.IsZero() {
				kept = append(kept, g)
			}
		}
		out = kept
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.Cents > out[j].Total.Cents
	})
	return out
}

// ComputeGrandTotal sums every amount. Empty input yields zero.
func ComputeGrandTotal[R Amounted](records []R) Money {
	var total Money
	for _, r := range records {
		total = total.Add(r.RecordAmount())
	}
	return total
}

// ExpensesByCategory tags expenses with their category name. Expenses
// without a known category fall under UncategorizedLabel.
func ExpensesByCategory(expenses []ExpenseRecord, categoryNames map[string]string) []Tagged {
	out := make([]Tagged, 0, len(expenses))
	for _, e := range expenses {
		name, ok := categoryNames[e.CategoryID]
		if e.CategoryID == "" || !ok {
			name = UncategorizedLabel
		}
		out = append(out, Tagged{Tag: name, Amount: e.Amount})
	}
	return out
}

// IncomeBySource tags income with its source name, falling back to the raw
// id for sources that no longer exist.
func IncomeBySource(income []IncomeRecord, sourceNames map[string]string) []Tagged {
	out := make([]Tagged, 0, len(income))
	for _, r := range income {
		name, ok := sourceNames[r.SourceID]
		if !ok {
			name = r.SourceID
		}
		out = append(out, Tagged{Tag: name, Amount: r.Amount})
	}
	return out
}

func ExpensesByAccount(expenses []ExpenseRecord) []Tagged {
	out := make([]Tagged, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, Tagged{Tag: e.AccountType, Amount: e.Amount})
	}
	return out
}

func IncomeByAccount(income []IncomeRecord) []Tagged {
	out := make([]Tagged, 0, len(income))
	for _, r := range income {
		out = append(out, Tagged{Tag: r.AccountType, Amount: r.Amount})
	}
	return out
}

// ByDay tags records with their day of month ("1".."31").
func ByDay[R dated](records []R) []Tagged {
	out := make([]Tagged, 0, len(records))
	for _, r := range records {
		out = append(out, Tagged{Tag: strconv.Itoa(r.RecordDate().Day()), Amount: r.RecordAmount()})
	}
	return out
}

// ByMonth tags records with their month number ("1".."12").
func ByMonth[R dated](records []R) []Tagged {
	out := make([]Tagged, 0, len(records))
	for _, r := range records {
		out = append(out, Tagged{Tag: strconv.Itoa(int(r.RecordDate().Month())), Amount: r.RecordAmount()})
	}
	return out
}

// NameIndex maps taxon id to name.
func NameIndex(taxa []Taxon) map[string]string {
	m := make(map[string]string, len(taxa))
	for _, t := range taxa {
		m[t.ID] = t.Name
	}
	return m
}
