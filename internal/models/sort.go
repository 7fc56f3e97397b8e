package models

import "sort"

// SortPatternsForDisplay orders patterns the way every consumer expects:
// MCA/lender patterns first, then by descending total amount. Ties fall back
// to the description pattern so the ordering is deterministic.
func SortPatternsForDisplay(patterns []*RecurringPattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.IsMCA != b.IsMCA {
			return a.IsMCA
		}
		if !a.TotalAmount.Equal(b.TotalAmount) {
			return a.TotalAmount.GreaterThan(b.TotalAmount)
		}
		return a.DescriptionPattern < b.DescriptionPattern
	})
}

// SortTransactionsByDate orders transactions by date, then description, then
// id, giving a reproducible ordering for aggregate computation and display.
func SortTransactionsByDate(txs []*BankTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.ID < b.ID
	})
}
