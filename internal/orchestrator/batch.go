package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/prompt"
	"github.com/blessandsoul/glow-server/internal/storage"
)

// BatchFile is one member of a batch submission.
type BatchFile struct {
	Name string
	Data []byte
}

// CreateBatchResult reports the created sibling jobs.
type CreateBatchResult struct {
	BatchID          string
	Jobs             []domain.Job
	CreditsRemaining *int
	DailyUsage       *domain.QuotaUsage
}

// BatchCoordinator submits N files as one logical batch built from the
// single-job path. All files are validated before any are persisted; members
// are then created sequentially, sharing one batch id and one resolved
// prompt. Sequential creation bounds worst-case overspend under a concurrent
// balance drain to one file's cost beyond the pre-flight estimate.
type BatchCoordinator struct {
	orch *Orchestrator
}

// NewBatchCoordinator creates a coordinator on top of the orchestrator.
func NewBatchCoordinator(orch *Orchestrator) *BatchCoordinator {
	return &BatchCoordinator{orch: orch}
}

// CreateBatch validates plan limits and billing headroom, then creates one
// job per file.
func (b *BatchCoordinator) CreateBatch(ctx context.Context, ownerID string, pt domain.ProcessingType, settings prompt.Settings, files []BatchFile) (*CreateBatchResult, error) {
	o := b.orch
	if ownerID == "" {
		return nil, domain.ErrForbidden
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: batch requires at least one file", domain.ErrInvalidFile)
	}

	acc, err := o.ledger.Account(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	planCfg := domain.PlanConfigFor(acc.Plan)
	if !planCfg.BatchUploadEnabled {
		return nil, domain.ErrBatchNotAllowed
	}
	if len(files) > planCfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds plan limit %d", domain.ErrTooManyFiles, len(files), planCfg.MaxBatchSize)
	}

	cost, ok := o.costs.CostFor(pt)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported processing type %q", domain.ErrInvalidFile, pt)
	}

	// Aggregate pre-flight. This is an estimate, not a lock: a concurrent
	// drain of the same balance between here and the per-file deductions can
	// still fail a member mid-batch.
	switch o.mode {
	case infra.BillingModeDailyQuota:
		usage, err := o.quota.Usage(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("check quota: %w", err)
		}
		if len(files) > usage.Remaining() {
			return nil, domain.ErrDailyLimitReached
		}
	default:
		if acc.Balance < len(files)*cost {
			return nil, domain.ErrInsufficientCredits
		}
	}

	// Validate every file before persisting anything: one bad file aborts
	// the whole batch with zero side effects.
	for _, f := range files {
		if err := storage.ValidateImage(f.Data, o.maxUploadBytes); err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Name, err)
		}
	}

	promptText, err := o.prompts.Resolve(ctx, pt, settings)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	result := &CreateBatchResult{BatchID: batchID}
	for _, f := range files {
		res, err := o.createJob(ctx, ownerID, CreateJobInput{
			FileName:       f.Name,
			Data:           f.Data,
			ProcessingType: pt,
			Settings:       settings,
		}, createOpts{
			batchID:        batchID,
			promptText:     promptText,
			skipValidation: true,
			fromBatch:      true,
		})
		if err != nil {
			// Members created so far are already billed and in flight; they
			// stay. The caller learns about the abort and can resubmit the
			// remainder.
			return nil, fmt.Errorf("batch member %q: %w", f.Name, err)
		}
		result.Jobs = append(result.Jobs, res.Job)
		result.CreditsRemaining = res.CreditsRemaining
	}

	// Flat-quota mode counts members once they all exist.
	if o.mode == infra.BillingModeDailyQuota {
		for range result.Jobs {
			usage, err := o.quota.Increment(ctx, ownerID)
			if err != nil {
				o.logger.Error().Err(err).Str("batch_id", batchID).Msg("batch: quota increment failed")
				continue
			}
			result.DailyUsage = &usage
		}
	}

	return result, nil
}
