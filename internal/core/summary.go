package core

// Snapshot is the raw material for a period view, already scoped to one
// user and date range.
type Snapshot struct {
	Period       Period
	Income       []IncomeRecord
	Expenses     []ExpenseRecord
	Categories   []Taxon
	Sources      []Taxon
	AccountTypes []Taxon
}

type MonthSummary struct {
	Period               Period           `json:"period"`
	Label                string           `json:"label"`
	IncomeTotal          Money            `json:"income_total"`
	ExpenseTotal         Money            `json:"expense_total"`
	Net                  Money            `json:"net"`
	ExpensesByCategory   []GroupTotal     `json:"expenses_by_category"`
	IncomeBySource       []GroupTotal     `json:"income_by_source"`
	ExpensesByAccount    []GroupTotal     `json:"expenses_by_account"`
	DailyExpenses        []SeriesPoint    `json:"daily_expenses"`
	AccountBalances      []AccountBalance `json:"account_balances"`
	DistributionBalances []AccountBalance `json:"distribution_balances"`
	CarryoverApplied     bool             `json:"carryover_applied"`
}

type YearSummary struct {
	Year                 int              `json:"year"`
	IncomeTotal          Money            `json:"income_total"`
	ExpenseTotal         Money            `json:"expense_total"`
	Net                  Money            `json:"net"`
	MonthlyIncome        []SeriesPoint    `json:"monthly_income"`
	MonthlyExpenses      []SeriesPoint    `json:"monthly_expenses"`
	ExpensesByCategory   []GroupTotal     `json:"expenses_by_category"`
	IncomeBySource       []GroupTotal     `json:"income_by_source"`
	AccountBalances      []AccountBalance `json:"account_balances"`
	DistributionBalances []AccountBalance `json:"distribution_balances"`
}

// SummarizeMonth reduces a monthly snapshot.
func SummarizeMonth(s Snapshot) MonthSummary {
	income := ComputeGrandTotal(s.Income)
	expense := ComputeGrandTotal(s.Expenses)
	balances := ComputeAccountBalances(s.Income, s.Expenses, AccountNames(s.AccountTypes))

	return MonthSummary{
		Period:               s.Period,
		Label:                s.Period.Label(),
		IncomeTotal:          income,
		ExpenseTotal:         expense,
		Net:                  income.Sub(expense),
		ExpensesByCategory:   ComputeTotals(ExpensesByCategory(s.Expenses, NameIndex(s.Categories))),
		IncomeBySource:       ComputeTotals(IncomeBySource(s.Income, NameIndex(s.Sources))),
		ExpensesByAccount:    ComputeTotals(ExpensesByAccount(s.Expenses), WithGroups(AccountNames(s.AccountTypes)...), DropZero()),
		DailyExpenses:        DaySeries(s.Period, s.Expenses),
		AccountBalances:      balances,
		DistributionBalances: DistributionBalances(balances),
	}
}

// SummarizeYear reduces a yearly snapshot.
func SummarizeYear(s Snapshot) YearSummary {
	income := ComputeGrandTotal(s.Income)
	expense := ComputeGrandTotal(s.Expenses)
	balances := ComputeAccountBalances(s.Income, s.Expenses, AccountNames(s.AccountTypes))

	return YearSummary{
		Year:                 s.Period.Year,
		IncomeTotal:          income,
		ExpenseTotal:         expense,
		Net:                  income.Sub(expense),
		MonthlyIncome:        MonthSeries(s.Period.Year, s.Income),
		MonthlyExpenses:      MonthSeries(s.Period.Year, s.Expenses),
		ExpensesByCategory:   ComputeTotals(ExpensesByCategory(s.Expenses, NameIndex(s.Categories))),
		IncomeBySource:       ComputeTotals(IncomeBySource(s.Income, NameIndex(s.Sources))),
		AccountBalances:      balances,
		DistributionBalances: DistributionBalances(balances),
	}
}
