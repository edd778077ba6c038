package domain

import "time"

// CreditAccount holds an owner's metered billing state. Balance is mutated
// only through CreditLedger deduct/refund operations.
type CreditAccount struct {
	OwnerID   string
	Plan      Plan
	Balance   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuotaUsage reports an owner's position inside the current daily window.
type QuotaUsage struct {
	Used     int
	Limit    int
	ResetsAt time.Time
}

// Remaining returns how many quota units are left in the window.
func (u QuotaUsage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}
