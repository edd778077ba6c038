// Package orchestrator coordinates the asynchronous job lifecycle: billing,
// persistence, the detached transformer call, and outcome reconciliation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/prompt"
	"github.com/blessandsoul/glow-server/internal/storage"
)

// Transformer is the external AI transformation service: raw image plus a
// prompt in, result references out, after unbounded latency.
type Transformer interface {
	Transform(ctx context.Context, image []byte, promptText string) ([]string, error)
}

// Uploader persists raw uploads and returns an opaque storage reference.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// PromptResolver produces the transformer instruction for a submission.
type PromptResolver interface {
	Resolve(ctx context.Context, pt domain.ProcessingType, settings prompt.Settings) (string, error)
}

// Notifier schedules job-ready notifications. Failures are logged, never
// escalated.
type Notifier interface {
	ScheduleReady(ctx context.Context, ownerID, jobID string) error
}

// Options wires an Orchestrator. The billing mode is fixed at construction;
// nothing reads it ambiently at request time, so two orchestrators with
// different modes can coexist in one process.
type Options struct {
	Mode           infra.BillingMode
	Costs          CostTable
	Jobs           domain.JobRepository
	Ledger         domain.CreditLedger
	Quota          domain.QuotaTracker
	Guests         domain.GuestGate
	Store          Uploader
	Prompts        PromptResolver
	Transformer    Transformer
	Notifier       Notifier
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

// Orchestrator owns the create-job flow and the reconciliation loop.
//
// Ordering guarantee: the job row is persisted and billed before the
// transformer call is spawned, so a client can always poll the job right
// after creation and observe PROCESSING.
//
// The credit pre-check (before the row exists) and the deduction (after) are
// deliberately not wrapped in one transaction; two near-simultaneous
// submissions by the same owner can both pass the pre-check. The atomic
// conditional decrement in the ledger then fails the loser, whose job is
// marked FAILED. This is the accepted soft race, not a bug to lock away.
type Orchestrator struct {
	mode           infra.BillingMode
	costs          CostTable
	jobs           domain.JobRepository
	ledger         domain.CreditLedger
	quota          domain.QuotaTracker
	guests         domain.GuestGate
	store          Uploader
	prompts        PromptResolver
	transformer    Transformer
	notifier       Notifier
	logger         zerolog.Logger
	maxUploadBytes int64

	results chan outcome
	wg      sync.WaitGroup
}

type outcome struct {
	job  domain.Job
	refs []string
	err  error
}

// New constructs an Orchestrator from Options.
func New(opts Options) *Orchestrator {
	costs := opts.Costs
	if costs == nil {
		costs = DefaultCostTable()
	}
	return &Orchestrator{
		mode:           opts.Mode,
		costs:          costs,
		jobs:           opts.Jobs,
		ledger:         opts.Ledger,
		quota:          opts.Quota,
		guests:         opts.Guests,
		store:          opts.Store,
		prompts:        opts.Prompts,
		transformer:    opts.Transformer,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		maxUploadBytes: opts.MaxUploadBytes,
		results:        make(chan outcome, 64),
	}
}

// Mode returns the billing regime this orchestrator applies.
func (o *Orchestrator) Mode() infra.BillingMode {
	return o.mode
}

// CreateJobInput is one photo submission.
type CreateJobInput struct {
	FileName       string
	Data           []byte
	ProcessingType domain.ProcessingType
	Settings       prompt.Settings
}

// CreateJobResult is returned to the caller while the transformation is
// still running. Exactly one of CreditsRemaining / DailyUsage is set for
// owned jobs, matching the billing regime; both are nil for guest jobs.
type CreateJobResult struct {
	Job              domain.Job
	CreditsRemaining *int
	DailyUsage       *domain.QuotaUsage
}

type createOpts struct {
	batchID        string
	promptText     string
	skipValidation bool
	fromBatch      bool
}

// CreateJob validates, bills, and persists an owned job, then launches the
// detached transformer call and returns.
func (o *Orchestrator) CreateJob(ctx context.Context, ownerID string, input CreateJobInput) (*CreateJobResult, error) {
	if ownerID == "" {
		return nil, domain.ErrForbidden
	}
	return o.createJob(ctx, ownerID, input, createOpts{})
}

// CreateGuestJob consumes the single-use trial token and creates an unowned,
// unbilled job.
func (o *Orchestrator) CreateGuestJob(ctx context.Context, sessionToken string, input CreateJobInput) (*CreateJobResult, error) {
	if err := o.guests.Consume(ctx, sessionToken); err != nil {
		return nil, err
	}
	return o.createJob(ctx, "", input, createOpts{})
}

func (o *Orchestrator) createJob(ctx context.Context, ownerID string, input CreateJobInput, opts createOpts) (*CreateJobResult, error) {
	if !opts.skipValidation {
		if err := storage.ValidateImage(input.Data, o.maxUploadBytes); err != nil {
			return nil, err
		}
	}

	cost, ok := o.costs.CostFor(input.ProcessingType)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported processing type %q", domain.ErrInvalidFile, input.ProcessingType)
	}

	// Pre-flight billing check, before anything is persisted. Batch
	// submissions already ran an aggregate pre-flight.
	if ownerID != "" && !opts.fromBatch {
		switch o.mode {
		case infra.BillingModeDailyQuota:
			if err := o.quota.CheckLimit(ctx, ownerID); err != nil {
				return nil, err
			}
		default:
			balance, err := o.ledger.Balance(ctx, ownerID)
			if err != nil {
				return nil, fmt.Errorf("check balance: %w", err)
			}
			if balance < cost {
				return nil, domain.ErrInsufficientCredits
			}
		}
	}

	id := uuid.NewString()
	originalRef, err := o.store.Upload(ctx, fmt.Sprintf("uploads/%s/original%s", id, storage.ExtensionFor(input.Data)), input.Data)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	promptText := opts.promptText
	if promptText == "" {
		promptText, err = o.prompts.Resolve(ctx, input.ProcessingType, input.Settings)
		if err != nil {
			return nil, err
		}
	}

	job := &domain.Job{
		ID:             id,
		OwnerID:        ownerID,
		Status:         domain.JobStatusProcessing,
		OriginalRef:    originalRef,
		ResultRefs:     []string{},
		ProcessingType: input.ProcessingType,
		CreditCost:     cost,
		BatchID:        opts.batchID,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	result := &CreateJobResult{Job: *job}
	if ownerID != "" {
		switch o.mode {
		case infra.BillingModeDailyQuota:
			if !opts.fromBatch {
				usage, err := o.quota.Increment(ctx, ownerID)
				if err != nil {
					return nil, o.failUnbilled(ctx, job, err)
				}
				result.DailyUsage = &usage
			}
		default:
			remaining, err := o.ledger.Deduct(ctx, ownerID, cost, id)
			if err != nil {
				return nil, o.failUnbilled(ctx, job, err)
			}
			result.CreditsRemaining = &remaining
		}
	}

	o.launch(ctx, *job, input.Data, promptText)
	return result, nil
}

// failUnbilled closes out a job whose charge could not be applied after the
// row was created. No PROCESSING row survives a failed charge.
func (o *Orchestrator) failUnbilled(ctx context.Context, job *domain.Job, cause error) error {
	if err := o.jobs.MarkFailed(ctx, job.ID, "billing failed"); err != nil && !errors.Is(err, domain.ErrDuplicateOperation) {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: mark unbilled job failed")
	}
	return cause
}

// launch spawns the transformer call detached from the request: the caller
// returns while the call runs, and its outcome is delivered on the results
// channel for the reconciliation loop.
func (o *Orchestrator) launch(ctx context.Context, job domain.Job, image []byte, promptText string) {
	callCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		refs, err := o.transformer.Transform(callCtx, image, promptText)
		o.results <- outcome{job: job, refs: refs, err: err}
	}()
}

// Run consumes transformer outcomes until ctx is cancelled. It is the only
// goroutine that moves jobs to a terminal status after creation.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info().Str("mode", string(o.mode)).Msg("orchestrator: reconciler started")
	for {
		select {
		case <-ctx.Done():
			// Drain outcomes already delivered so finished transforms are
			// not lost on shutdown.
			for {
				select {
				case out := <-o.results:
					o.reconcile(out)
				default:
					o.logger.Info().Msg("orchestrator: reconciler stopped")
					return
				}
			}
		case out := <-o.results:
			o.reconcile(out)
		}
	}
}

// Wait blocks until all in-flight transformer calls have delivered their
// outcome. Used by shutdown and tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) reconcile(out outcome) {
	// The originating request is long gone; reconciliation runs on its own
	// deadline and its failures are logged, never surfaced.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if out.err != nil {
		o.reconcileFailure(ctx, out)
		return
	}

	if err := o.jobs.MarkDone(ctx, out.job.ID, out.refs); err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			o.logger.Warn().Str("job_id", out.job.ID).Msg("orchestrator: job already terminal, skipping done transition")
			return
		}
		o.logger.Error().Err(err).Str("job_id", out.job.ID).Msg("orchestrator: mark done failed")
		return
	}

	if !out.job.IsGuest() {
		if err := o.notifier.ScheduleReady(ctx, out.job.OwnerID, out.job.ID); err != nil {
			o.logger.Error().Err(err).Str("job_id", out.job.ID).Msg("orchestrator: schedule ready notification failed")
		}
	}
	o.logger.Info().Str("job_id", out.job.ID).Int("results", len(out.refs)).Msg("orchestrator: job done")
}

func (o *Orchestrator) reconcileFailure(ctx context.Context, out outcome) {
	o.logger.Warn().Err(out.err).Str("job_id", out.job.ID).Msg("orchestrator: transformer failed")

	if err := o.jobs.MarkFailed(ctx, out.job.ID, out.err.Error()); err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			o.logger.Warn().Str("job_id", out.job.ID).Msg("orchestrator: job already terminal, skipping failed transition")
		} else {
			o.logger.Error().Err(err).Str("job_id", out.job.ID).Msg("orchestrator: mark failed failed")
		}
	}

	// Credits come back on failure; quota units do not. The refund is keyed
	// by job id, so replaying this handler cannot refund twice.
	if !out.job.IsGuest() && o.mode == infra.BillingModeCredits && out.job.CreditCost > 0 {
		if err := o.ledger.Refund(ctx, out.job.OwnerID, out.job.CreditCost, out.job.ID); err != nil {
			o.logger.Error().Err(err).Str("job_id", out.job.ID).Msg("orchestrator: refund failed")
		}
	}
}
