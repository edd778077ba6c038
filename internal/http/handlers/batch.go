package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/orchestrator"
	"github.com/blessandsoul/glow-server/internal/prompt"
)

type createBatchResponse struct {
	BatchID          string    `json:"batch_id"`
	Jobs             []jobDTO  `json:"jobs"`
	CreditsRemaining *int      `json:"credits_remaining,omitempty"`
	DailyUsage       *usageDTO `json:"daily_usage,omitempty"`
}

// JobsCreateBatch handles POST /v1/jobs/batch (multipart, repeated "files"
// parts).
func (a *App) JobsCreateBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil || r.MultipartForm == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	var files []orchestrator.BatchFile
	for _, header := range r.MultipartForm.File["files"] {
		part, err := header.Open()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable file part")
			return
		}
		data, err := io.ReadAll(io.LimitReader(part, a.Config.MaxUploadBytes+1))
		part.Close()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable file part")
			return
		}
		files = append(files, orchestrator.BatchFile{Name: header.Filename, Data: data})
	}
	if len(files) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "files required")
		return
	}

	pt := domain.ProcessingType(r.FormValue("processing_type"))
	if pt == "" {
		pt = domain.ProcessingTypeEnhance
	}
	var settings prompt.Settings
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid settings")
			return
		}
	}

	res, err := a.Batch.CreateBatch(r.Context(), userID, pt, settings, files)
	if err != nil {
		a.domainError(w, err)
		return
	}

	resp := createBatchResponse{
		BatchID:          res.BatchID,
		Jobs:             make([]jobDTO, 0, len(res.Jobs)),
		CreditsRemaining: res.CreditsRemaining,
	}
	for _, job := range res.Jobs {
		resp.Jobs = append(resp.Jobs, a.jobDTO(job))
	}
	if res.DailyUsage != nil {
		resp.DailyUsage = &usageDTO{Used: res.DailyUsage.Used, Limit: res.DailyUsage.Limit, ResetsAt: res.DailyUsage.ResetsAt}
	}
	a.json(w, http.StatusCreated, resp)
}
