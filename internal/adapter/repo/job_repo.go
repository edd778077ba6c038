package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blessandsoul/glow-server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, owner_id, status, original_ref, result_refs, processing_type, credit_cost, batch_id, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		nullableID(job.OwnerID),
		job.Status,
		job.OriginalRef,
		job.ResultRefs,
		job.ProcessingType,
		job.CreditCost,
		nullableID(job.BatchID),
		job.ErrorMessage,
	)
	return err
}

// MarkDone transitions a PROCESSING job to DONE with its result references.
// Terminal jobs are left untouched and domain.ErrDuplicateOperation is
// returned so a retried reconciliation can tell the transition already
// happened.
func (r *JobRepositoryPG) MarkDone(ctx context.Context, jobID string, resultRefs []string) error {
	query := `
UPDATE jobs
SET status = $2, result_refs = $3, updated_at = NOW()
WHERE id = $1 AND status = $4;
`
	tag, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusDone, resultRefs, domain.JobStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateOperation
	}
	return nil
}

// MarkFailed transitions a PROCESSING job to FAILED with an empty result set.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	query := `
UPDATE jobs
SET status = $2, result_refs = '{}', error_message = $3, updated_at = NOW()
WHERE id = $1 AND status = $4;
`
	tag, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusFailed, errMsg, domain.JobStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateOperation
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, owner_id, status, original_ref, result_refs, processing_type, credit_cost, batch_id, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	return scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// List returns one page of the owner's jobs, newest first, plus the total
// row count for the filter.
func (r *JobRepositoryPG) List(ctx context.Context, ownerID string, filter domain.JobFilter) ([]domain.Job, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs WHERE owner_id = $1 AND ($2 = '' OR status = $2)`
	if err := r.pool.QueryRow(ctx, countQuery, ownerID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
SELECT id, owner_id, status, original_ref, result_refs, processing_type, credit_cost, batch_id, error_message, created_at, updated_at
FROM jobs
WHERE owner_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;
`
	rows, err := r.pool.Query(ctx, query, ownerID, string(filter.Status), limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, total, rows.Err()
}

// Delete removes a job owned by ownerID.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1 AND owner_id = $2`, jobID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteMany removes the listed jobs owned by ownerID and reports how many
// rows were actually deleted.
func (r *JobRepositoryPG) DeleteMany(ctx context.Context, jobIDs []string, ownerID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1) AND owner_id = $2`, jobIDs, ownerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Stats aggregates the owner's job history. Credits spent comes from the
// billing ledger (deducts net of refunds), not from job rows: under daily
// quota billing jobs carry a nominal credit_cost but no deduct event exists,
// and a FAILED job that was refunded must not count.
func (r *JobRepositoryPG) Stats(ctx context.Context, ownerID string) (*domain.JobStats, error) {
	query := `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'PROCESSING'),
       COUNT(*) FILTER (WHERE status = 'DONE'),
       COUNT(*) FILTER (WHERE status = 'FAILED'),
       COALESCE((SELECT SUM(CASE action WHEN 'deduct' THEN amount ELSE -amount END)
                 FROM billing_events
                 WHERE owner_id = $1), 0)
FROM jobs
WHERE owner_id = $1;
`
	var stats domain.JobStats
	row := r.pool.QueryRow(ctx, query, ownerID)
	if err := row.Scan(&stats.Total, &stats.Processing, &stats.Done, &stats.Failed, &stats.CreditsSpent); err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var ownerID, batchID *string
	if err := row.Scan(
		&job.ID,
		&ownerID,
		&job.Status,
		&job.OriginalRef,
		&job.ResultRefs,
		&job.ProcessingType,
		&job.CreditCost,
		&batchID,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if ownerID != nil {
		job.OwnerID = *ownerID
	}
	if batchID != nil {
		job.BatchID = *batchID
	}
	return &job, nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
