package core

type AccountBalance struct {
	AccountType string `json:"account_type"`
	Income      Money  `json:"income"`
	Expenses    Money  `json:"expenses"`
	Balance     Money  `json:"balance"`
}

// ComputeAccountBalances returns one row per account type, in the order
// given. Matching is by exact tag string; records naming an account type
// not in accountTypes are not reported.
func ComputeAccountBalances(income []IncomeRecord, expenses []ExpenseRecord, accountTypes []string) []AccountBalance {
	out := make([]AccountBalance, 0, len(accountTypes))
	index := make(map[string]int, len(accountTypes))
	for _, name := range accountTypes {
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = len(out)
		out = append(out, AccountBalance{AccountType: name})
	}

	for _, r := range income {
		if i, ok := index[r.AccountType]; ok {
			out[i].Income = out[i].Income.Add(r.Amount)
		}
	}
	for _, e := range expenses {
		if i, ok := index[e.AccountType]; ok {
			out[i].Expenses = out[i].Expenses.Add(e.Amount)
		}
	}
	for i := range out {
		out[i].Balance = out[i].Income.Sub(out[i].Expenses)
	}
	return out
}

// DistributionBalances keeps only accounts with a positive balance.
func DistributionBalances(rows []AccountBalance) []AccountBalance {
	out := make([]AccountBalance, 0, len(rows))
	for _, r := range rows {
		if r.Balance.IsPositive() {
			out = append(out, r)
		}
	}
	return out
}

// AccountNames lists the names of account-type taxa.
func AccountNames(taxa []Taxon) []string {
	out := make([]string, 0, len(taxa))
	for _, t := range taxa {
		out = append(out, t.Name)
	}
	return out
}
