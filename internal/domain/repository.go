package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities. MarkDone and MarkFailed
// only transition jobs that are still PROCESSING; DONE and FAILED are
// terminal.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	MarkDone(ctx context.Context, jobID string, resultRefs []string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, ownerID string, filter JobFilter) ([]Job, int, error)
	Delete(ctx context.Context, jobID, ownerID string) error
	DeleteMany(ctx context.Context, jobIDs []string, ownerID string) (int64, error)
	Stats(ctx context.Context, ownerID string) (*JobStats, error)
}

// CreditLedger tracks per-owner balances. Deduct is an atomic conditional
// decrement keyed by job id; Refund applies at most once per job regardless
// of how often it is retried.
type CreditLedger interface {
	Account(ctx context.Context, ownerID string) (*CreditAccount, error)
	Balance(ctx context.Context, ownerID string) (int, error)
	Deduct(ctx context.Context, ownerID string, amount int, jobID string) (int, error)
	Refund(ctx context.Context, ownerID string, amount int, jobID string) error
}

// QuotaTracker is the flat daily billing primitive. CheckLimit never mutates
// state; Increment counts one unit against the current window. There is no
// refund operation in this regime.
type QuotaTracker interface {
	CheckLimit(ctx context.Context, ownerID string) error
	Increment(ctx context.Context, ownerID string) (QuotaUsage, error)
	Usage(ctx context.Context, ownerID string) (QuotaUsage, error)
}

// GuestGate authorizes at most one job per session token within the token's
// time-to-live window.
type GuestGate interface {
	Consume(ctx context.Context, sessionToken string) error
	TTL() time.Duration
}
