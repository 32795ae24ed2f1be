package core

// ApplyPayment spreads amount over the open transactions in display order
// and returns the updated details and how much was applied. Any excess over
// the total outstanding balance is not applied.
func ApplyPayment(d DebtorDetails, amount int64) (DebtorDetails, int64) {
	out := DebtorDetails{ID: d.ID, TotalDebt: d.TotalDebt}
	out.Transactions = make([]Transaction, len(d.Transactions))
	copy(out.Transactions, d.Transactions)

	var applied int64
	for i := range out.Transactions {
		if amount <= 0 {
			break
		}
		open := out.Transactions[i].Outstanding()
		if open <= 0 {
			continue
		}
		step := min(open, amount)
		out.Transactions[i].PaidAmount += step
		amount -= step
		applied += step
	}
	out.TotalDebt -= applied
	return out, applied
}
