package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/orchestrator"
	"github.com/blessandsoul/glow-server/internal/prompt"
)

const multipartMemory = 8 << 20

type usageDTO struct {
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resets_at"`
}

type createJobResponse struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	OriginalURL      string    `json:"original_url"`
	CreditsRemaining *int      `json:"credits_remaining,omitempty"`
	DailyUsage       *usageDTO `json:"daily_usage,omitempty"`
}

type jobDTO struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	OriginalURL    string    `json:"original_url"`
	ResultURLs     []string  `json:"result_urls"`
	ProcessingType string    `json:"processing_type"`
	CreditCost     int       `json:"credit_cost"`
	BatchID        string    `json:"batch_id,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *App) jobDTO(job domain.Job) jobDTO {
	urls := make([]string, 0, len(job.ResultRefs))
	for _, ref := range job.ResultRefs {
		urls = append(urls, a.refURL(ref))
	}
	return jobDTO{
		ID:             job.ID,
		Status:         string(job.Status),
		OriginalURL:    a.refURL(job.OriginalRef),
		ResultURLs:     urls,
		ProcessingType: string(job.ProcessingType),
		CreditCost:     job.CreditCost,
		BatchID:        job.BatchID,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

func createResponseFrom(a *App, res *orchestrator.CreateJobResult) createJobResponse {
	resp := createJobResponse{
		ID:               res.Job.ID,
		Status:           string(res.Job.Status),
		OriginalURL:      a.refURL(res.Job.OriginalRef),
		CreditsRemaining: res.CreditsRemaining,
	}
	if res.DailyUsage != nil {
		resp.DailyUsage = &usageDTO{Used: res.DailyUsage.Used, Limit: res.DailyUsage.Limit, ResetsAt: res.DailyUsage.ResetsAt}
	}
	return resp
}

// readSubmission parses the multipart submission shared by the single-job and
// guest endpoints.
func (a *App) readSubmission(r *http.Request) (orchestrator.CreateJobInput, bool) {
	var input orchestrator.CreateJobInput
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return input, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return input, false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, a.Config.MaxUploadBytes+1))
	if err != nil {
		return input, false
	}

	input.FileName = header.Filename
	input.Data = data
	input.ProcessingType = domain.ProcessingType(r.FormValue("processing_type"))
	if input.ProcessingType == "" {
		input.ProcessingType = domain.ProcessingTypeEnhance
	}
	if raw := r.FormValue("settings"); raw != "" {
		var settings prompt.Settings
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return input, false
		}
		input.Settings = settings
	}
	return input, true
}

// JobsCreate handles POST /v1/jobs. The response returns once the job is
// persisted and billed; processing continues in the background.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	input, ok := a.readSubmission(r)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	res, err := a.Orch.CreateJob(r.Context(), userID, input)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, createResponseFrom(a, res))
}

// jobIDParam extracts and validates the job_id path parameter. Ids that are
// not UUIDs cannot match any row, so they 404 before touching the database.
func jobIDParam(r *http.Request) (string, bool) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		return "", false
	}
	return jobID, true
}

// JobGet handles GET /v1/jobs/{job_id}. A job with no owner is visible to
// anyone holding the id; an owned job only to its owner.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(r)
	if !ok {
		a.domainError(w, domain.ErrNotFound)
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if !job.IsGuest() && job.OwnerID != a.optionalUserID(r) {
		a.domainError(w, domain.ErrForbidden)
		return
	}
	a.json(w, http.StatusOK, a.jobDTO(*job))
}

// JobsList handles GET /v1/jobs?status=&page=&limit= for the authenticated
// owner.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	filter := domain.JobFilter{
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 20),
	}
	jobs, total, err := a.Jobs.List(r.Context(), userID, filter)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, a.jobDTO(job))
	}
	a.json(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// JobDelete handles DELETE /v1/jobs/{job_id}.
func (a *App) JobDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		a.domainError(w, domain.ErrNotFound)
		return
	}
	if err := a.Jobs.Delete(r.Context(), jobID, userID); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// JobsBulkDelete handles POST /v1/jobs/bulk-delete.
func (a *App) JobsBulkDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "ids required")
		return
	}
	ids := req.IDs[:0]
	for _, id := range req.IDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		a.json(w, http.StatusOK, map[string]any{"deleted": 0})
		return
	}
	deleted, err := a.Jobs.DeleteMany(r.Context(), ids, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
