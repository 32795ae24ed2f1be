package customers

import (
	"sync"

	"nasiya/internal/core"
)

// Filter memoizes the visible list. The result is recomputed only when the
// collection version or the query differs from the previous call.
type Filter struct {
	mu       sync.Mutex
	valid    bool
	version  uint64
	query    string
	result   []core.Debtor
	computes int
}

// Apply returns the debtors of s matching s.Query. Callers must not modify
// the returned slice.
func (f *Filter) Apply(s State) []core.Debtor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.valid && f.version == s.Version && f.query == s.Query {
		return f.result
	}
	f.result = core.FilterDebtors(s.Debtors, s.Query)
	f.version = s.Version
	f.query = s.Query
	f.valid = true
	f.computes++
	return f.result
}

// Computes reports how many times the filter actually ran.
func (f *Filter) Computes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computes
}
