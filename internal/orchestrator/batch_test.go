package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/prompt"
)

func batchFiles(n int) []BatchFile {
	files := make([]BatchFile, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, BatchFile{Name: "photo.png", Data: pngBytes})
	}
	return files
}

func TestCreateBatchCreditsHappyPath(t *testing.T) {
	h := newHarness(t, infra.BillingModeCredits)
	h.ledger.seed("user-1", domain.PlanPro, 10)
	batch := NewBatchCoordinator(h.orch)

	res, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(3))
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if res.BatchID == "" {
		t.Fatalf("empty batch id")
	}
	if len(res.Jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(res.Jobs))
	}
	for _, job := range res.Jobs {
		if job.BatchID != res.BatchID {
			t.Fatalf("member batch id = %q, want %q", job.BatchID, res.BatchID)
		}
		h.jobs.awaitStatus(t, job.ID, domain.JobStatusDone)
	}
	if res.CreditsRemaining == nil || *res.CreditsRemaining != 7 {
		t.Fatalf("credits remaining = %v, want 7", res.CreditsRemaining)
	}
}

func TestCreateBatchQuotaCountsEachMember(t *testing.T) {
	h := newHarness(t, infra.BillingModeDailyQuota)
	h.ledger.seed("user-1", domain.PlanPro, 0)
	batch := NewBatchCoordinator(h.orch)

	res, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(3))
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if res.DailyUsage == nil || res.DailyUsage.Used != 3 {
		t.Fatalf("daily usage = %v, want used=3", res.DailyUsage)
	}
}

func TestCreateBatchPlanGate(t *testing.T) {
	h := newHarness(t, infra.BillingModeCredits)
	h.ledger.seed("free-user", domain.PlanFree, 100)
	h.ledger.seed("pro-user", domain.PlanPro, 100)
	batch := NewBatchCoordinator(h.orch)

	if _, err := batch.CreateBatch(context.Background(), "free-user", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(2)); !errors.Is(err, domain.ErrBatchNotAllowed) {
		t.Fatalf("free plan error = %v, want ErrBatchNotAllowed", err)
	}
	if _, err := batch.CreateBatch(context.Background(), "pro-user", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(11)); !errors.Is(err, domain.ErrTooManyFiles) {
		t.Fatalf("oversize batch error = %v, want ErrTooManyFiles", err)
	}
}

func TestCreateBatchAggregatePreFlight(t *testing.T) {
	t.Run("credits", func(t *testing.T) {
		h := newHarness(t, infra.BillingModeCredits)
		h.ledger.seed("user-1", domain.PlanPro, 3)
		batch := NewBatchCoordinator(h.orch)

		// 2 restores cost 4, balance is 3.
		_, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeRestore, prompt.Settings{}, batchFiles(2))
		if !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Fatalf("error = %v, want ErrInsufficientCredits", err)
		}
		if len(h.jobs.jobs) != 0 {
			t.Fatalf("jobs persisted despite rejected pre-flight")
		}
		if balance, _ := h.ledger.Balance(context.Background(), "user-1"); balance != 3 {
			t.Fatalf("balance touched by rejected batch")
		}
	})

	t.Run("quota", func(t *testing.T) {
		h := newHarness(t, infra.BillingModeDailyQuota)
		h.ledger.seed("user-1", domain.PlanPro, 0)
		h.quota.used["user-1"] = 4 // one unit left out of 5
		batch := NewBatchCoordinator(h.orch)

		_, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(2))
		if !errors.Is(err, domain.ErrDailyLimitReached) {
			t.Fatalf("error = %v, want ErrDailyLimitReached", err)
		}
		if usage, _ := h.quota.Usage(context.Background(), "user-1"); usage.Used != 4 {
			t.Fatalf("quota used = %d, want 4 untouched", usage.Used)
		}
	})
}

func TestCreateBatchValidatesAllBeforePersistingAny(t *testing.T) {
	h := newHarness(t, infra.BillingModeCredits)
	h.ledger.seed("user-1", domain.PlanPro, 100)
	batch := NewBatchCoordinator(h.orch)

	files := batchFiles(3)
	files[2] = BatchFile{Name: "notes.txt", Data: []byte("plain text masquerading as a photo")}

	_, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeEnhance, prompt.Settings{}, files)
	if !errors.Is(err, domain.ErrInvalidFile) {
		t.Fatalf("error = %v, want ErrInvalidFile", err)
	}
	if len(h.jobs.jobs) != 0 {
		t.Fatalf("jobs persisted despite invalid member")
	}
	if balance, _ := h.ledger.Balance(context.Background(), "user-1"); balance != 100 {
		t.Fatalf("balance touched by rejected batch")
	}
	if h.trans.callCount() != 0 {
		t.Fatalf("transformer called for rejected batch")
	}
}

func TestCreateBatchMidLoopAbortKeepsCreatedMembers(t *testing.T) {
	h := newHarness(t, infra.BillingModeCredits)
	h.ledger.seed("user-1", domain.PlanPro, 10)
	batch := NewBatchCoordinator(h.orch)

	// Fail the third deduction; the first two members are billed and in
	// flight, the batch call itself reports the abort.
	deducts := 0
	h.orch.ledger = &countingLedger{fakeLedger: h.ledger, failAfter: 2, count: &deducts}

	_, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(3))
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("error = %v, want ErrInsufficientCredits", err)
	}

	h.orch.Wait()
	processing, done, failed := 0, 0, 0
	for id := range h.jobs.jobs {
		job, _ := h.jobs.GetByID(context.Background(), id)
		switch job.Status {
		case domain.JobStatusProcessing:
			processing++
		case domain.JobStatusDone:
			done++
		case domain.JobStatusFailed:
			failed++
		}
	}
	// Two members survived the abort (eventually DONE via the fake
	// transformer); the unbilled third is FAILED.
	if done+processing != 2 || failed != 1 {
		t.Fatalf("members after abort: done=%d processing=%d failed=%d, want 2 live and 1 failed", done, processing, failed)
	}
}

func TestCreateBatchRejectsEmptyAndGuest(t *testing.T) {
	h := newHarness(t, infra.BillingModeCredits)
	h.ledger.seed("user-1", domain.PlanPro, 10)
	batch := NewBatchCoordinator(h.orch)

	if _, err := batch.CreateBatch(context.Background(), "", domain.ProcessingTypeEnhance, prompt.Settings{}, batchFiles(1)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("guest batch error = %v, want ErrForbidden", err)
	}
	if _, err := batch.CreateBatch(context.Background(), "user-1", domain.ProcessingTypeEnhance, prompt.Settings{}, nil); !errors.Is(err, domain.ErrInvalidFile) {
		t.Fatalf("empty batch error = %v, want ErrInvalidFile", err)
	}
}

// countingLedger fails Deduct after failAfter successes.
type countingLedger struct {
	*fakeLedger
	failAfter int
	count     *int
}

func (c *countingLedger) Deduct(ctx context.Context, ownerID string, amount int, jobID string) (int, error) {
	if *c.count >= c.failAfter {
		return 0, domain.ErrInsufficientCredits
	}
	*c.count++
	return c.fakeLedger.Deduct(ctx, ownerID, amount, jobID)
}
