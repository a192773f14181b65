package core

// HasCarryover reports whether income already holds a carryover entry for
// p, either tagged with the reserved source or marked with p's key.
func HasCarryover(income []IncomeRecord, p Period, reservedSourceID string) bool {
	key := p.Key()
	for _, r := range income {
		if r.CarryoverPeriod == key {
			return true
		}
		if reservedSourceID != "" && r.SourceID == reservedSourceID && p.Contains(r.Date) {
			return true
		}
	}
	return false
}

// CarryoverDescription names the period a carryover row came from.
func CarryoverDescription(from Period) string {
	return "Balance carried over from " + from.Label()
}

// PlanCarryover builds one income row per account whose balance in the
// preceding period is strictly positive. Accounts are independent: a
// deficit in one never offsets a surplus in another. Rows are dated the
// first day of p and carry no ID yet.
func PlanCarryover(p Period, prev []AccountBalance, userID, reservedSourceID string) []IncomeRecord {
	if p.IsYear() {
		return nil
	}
	from := p.Prev()
	var out []IncomeRecord
	for _, b := range prev {
		if !b.Balance.IsPositive() {
			continue
		}
		out = append(out, IncomeRecord{
			UserID:          userID,
			Amount:          b.Balance,
			Date:            p.Start(),
			SourceID:        reservedSourceID,
			AccountType:     b.AccountType,
			Description:     CarryoverDescription(from),
			CarryoverPeriod: p.Key(),
		})
	}
	return out
}
