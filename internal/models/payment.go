package models

import "time"

type FundCategory string

const (
	FundBugHunterBounty FundCategory = "bug_hunter_bounty"
	FundOperations      FundCategory = "operations"
	FundDevelopment     FundCategory = "development"
)

// FundCategories lists all categories in fixed priority order.
// The order breaks ties during remainder distribution.
var FundCategories = []FundCategory{
	FundBugHunterBounty,
	FundOperations,
	FundDevelopment,
}

// FundShareBP holds the target split in basis points per category.
var FundShareBP = map[FundCategory]int64{
	FundBugHunterBounty: 3000,
	FundOperations:      5000,
	FundDevelopment:     2000,
}

// Payment mirrors the confirmed-payment event from the payment collaborator.
type Payment struct {
	ID          string     `json:"id"`
	AmountCents int64      `json:"amount_cents"`
	Allocated   bool       `json:"allocated"`
	CreatedAt   time.Time  `json:"created_at"`
	AllocatedAt *time.Time `json:"allocated_at"`
}

// AllocationEntry is one immutable ledger line from a single payment.
// For a payment the three entries form a closed set summing exactly to
// the payment amount.
type AllocationEntry struct {
	ID          string       `json:"id"`
	PaymentID   string       `json:"payment_id"`
	Category    FundCategory `json:"category"`
	AmountCents int64        `json:"amount_cents"`
	CreatedAt   time.Time    `json:"created_at"`
}
