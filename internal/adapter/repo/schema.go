package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id              UUID PRIMARY KEY,
    owner_id        UUID,
    status          TEXT NOT NULL,
    original_ref    TEXT NOT NULL,
    result_refs     TEXT[] NOT NULL DEFAULT '{}',
    processing_type TEXT NOT NULL,
    credit_cost     INT NOT NULL,
    batch_id        UUID,
    error_message   TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_jobs_owner_created ON jobs (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_batch ON jobs (batch_id) WHERE batch_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS credit_accounts (
    owner_id   UUID PRIMARY KEY,
    plan       TEXT NOT NULL DEFAULT 'free',
    balance    INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS billing_events (
    job_id     UUID NOT NULL,
    action     TEXT NOT NULL,
    owner_id   UUID NOT NULL,
    amount     INT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (job_id, action)
);
`

// EnsureSchema creates the service tables when they do not exist yet. It is
// idempotent and safe to run at every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
