package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blessandsoul/glow-server/internal/branding"
	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/middleware"
	"github.com/blessandsoul/glow-server/internal/orchestrator"
	"github.com/blessandsoul/glow-server/internal/prompt"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

type memJobs struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	spent map[string]int // net billed credits per owner, as the ledger reports them
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*domain.Job), spent: make(map[string]int)}
}

func (m *memJobs) put(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *memJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobs) MarkDone(ctx context.Context, jobID string, resultRefs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrDuplicateOperation
	}
	job.Status = domain.JobStatusDone
	job.ResultRefs = append([]string(nil), resultRefs...)
	return nil
}

func (m *memJobs) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrDuplicateOperation
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) List(ctx context.Context, ownerID string, filter domain.JobFilter) ([]domain.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, job := range m.jobs {
		if job.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, *job)
	}
	return out, len(out), nil
}

func (m *memJobs) Delete(ctx context.Context, jobID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *memJobs) DeleteMany(ctx context.Context, jobIDs []string, ownerID string) (int64, error) {
	var n int64
	for _, id := range jobIDs {
		if err := m.Delete(ctx, id, ownerID); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *memJobs) Stats(ctx context.Context, ownerID string) (*domain.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.JobStats{}
	for _, job := range m.jobs {
		if job.OwnerID != ownerID {
			continue
		}
		stats.Total++
		switch job.Status {
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusDone:
			stats.Done++
		case domain.JobStatusFailed:
			stats.Failed++
		}
	}
	stats.CreditsSpent = m.spent[ownerID]
	return stats, nil
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int
	plans    map[string]domain.Plan
	events   map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{
		balances: make(map[string]int),
		plans:    make(map[string]domain.Plan),
		events:   make(map[string]bool),
	}
}

func (m *memLedger) seed(ownerID string, plan domain.Plan, balance int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[ownerID] = balance
	m.plans[ownerID] = plan
}

func (m *memLedger) Account(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.CreditAccount{OwnerID: ownerID, Plan: m.plans[ownerID], Balance: balance}, nil
}

func (m *memLedger) Balance(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[ownerID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return balance, nil
}

func (m *memLedger) Deduct(ctx context.Context, ownerID string, amount int, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[jobID+"/deduct"] {
		return 0, domain.ErrDuplicateOperation
	}
	balance, ok := m.balances[ownerID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if balance < amount {
		return 0, domain.ErrInsufficientCredits
	}
	m.events[jobID+"/deduct"] = true
	m.balances[ownerID] = balance - amount
	return m.balances[ownerID], nil
}

func (m *memLedger) Refund(ctx context.Context, ownerID string, amount int, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[jobID+"/refund"] {
		return nil
	}
	m.events[jobID+"/refund"] = true
	m.balances[ownerID] += amount
	return nil
}

type memQuota struct {
	mu    sync.Mutex
	used  map[string]int
	limit int
}

func newMemQuota(limit int) *memQuota {
	return &memQuota{used: make(map[string]int), limit: limit}
}

func (m *memQuota) CheckLimit(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[ownerID] >= m.limit {
		return domain.ErrDailyLimitReached
	}
	return nil
}

func (m *memQuota) Increment(ctx context.Context, ownerID string) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used[ownerID]++
	return domain.QuotaUsage{Used: m.used[ownerID], Limit: m.limit}, nil
}

func (m *memQuota) Usage(ctx context.Context, ownerID string) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.QuotaUsage{Used: m.used[ownerID], Limit: m.limit}, nil
}

type memGate struct {
	mu       sync.Mutex
	consumed map[string]bool
}

func newMemGate() *memGate {
	return &memGate{consumed: make(map[string]bool)}
}

func (m *memGate) Consume(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return domain.ErrForbidden
	}
	if m.consumed[token] {
		return domain.ErrGuestDemoExhausted
	}
	m.consumed[token] = true
	return nil
}

func (m *memGate) TTL() time.Duration { return 24 * time.Hour }

type memStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{uploads: make(map[string][]byte)}
}

func (m *memStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memStore) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.uploads[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type staticPrompts struct{}

func (staticPrompts) Resolve(ctx context.Context, pt domain.ProcessingType, settings prompt.Settings) (string, error) {
	return "prompt", nil
}

type staticTransformer struct{}

func (staticTransformer) Transform(ctx context.Context, image []byte, promptText string) ([]string, error) {
	return []string{"results/a.jpg"}, nil
}

type noopNotifier struct{}

func (noopNotifier) ScheduleReady(ctx context.Context, ownerID, jobID string) error { return nil }

type testEnv struct {
	app    *App
	jobs   *memJobs
	ledger *memLedger
	quota  *memQuota
	gate   *memGate
	store  *memStore
}

const testSecret = "test-secret"

func newTestEnv(t *testing.T, mode infra.BillingMode) *testEnv {
	t.Helper()
	env := &testEnv{
		jobs:   newMemJobs(),
		ledger: newMemLedger(),
		quota:  newMemQuota(5),
		gate:   newMemGate(),
		store:  newMemStore(),
	}
	orch := orchestrator.New(orchestrator.Options{
		Mode:           mode,
		Jobs:           env.jobs,
		Ledger:         env.ledger,
		Quota:          env.quota,
		Guests:         env.gate,
		Store:          env.store,
		Prompts:        staticPrompts{},
		Transformer:    staticTransformer{},
		Notifier:       noopNotifier{},
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 1 << 20,
	})
	t.Cleanup(orch.Wait)
	env.app = &App{
		Config: &infra.Config{
			JWTSecret:      testSecret,
			StorageBaseURL: "http://localhost:8080/static",
			MaxUploadBytes: 1 << 20,
			BillingMode:    mode,
		},
		Logger:   zerolog.Nop(),
		Orch:     orch,
		Batch:    orchestrator.NewBatchCoordinator(orch),
		Jobs:     env.jobs,
		Ledger:   env.ledger,
		Quota:    env.quota,
		Composer: branding.NewComposer(env.store, zerolog.Nop()),
	}
	return env
}

// multipartBody builds a submission body with one file field plus extra form
// values.
func multipartBody(t *testing.T, field, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		Sub: userID,
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}
