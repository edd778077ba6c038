package handlers

import (
	"net/http"
	"strconv"

	"github.com/blessandsoul/glow-server/internal/branding"
	"github.com/blessandsoul/glow-server/internal/domain"
)

// JobDownload handles GET /v1/jobs/{job_id}/download. The job must be DONE;
// composition is delegated to the branding collaborator.
func (a *App) JobDownload(w http.ResponseWriter, r *http.Request) {
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
	if job.Status != domain.JobStatusDone || len(job.ResultRefs) == 0 {
		a.domainError(w, domain.ErrJobNotReady)
		return
	}

	q := r.URL.Query()
	idx := 0
	if v := q.Get("variant"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 && parsed < len(job.ResultRefs) {
			idx = parsed
		}
	}
	opts := branding.Options{
		Variant: q.Get("variant"),
		Branded: q.Get("branded") != "false",
		Upscale: q.Get("upscale") == "true",
	}

	data, contentType, err := a.Composer.Compose(r.Context(), job.ResultRefs[idx], opts)
	if err != nil {
		a.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename=job-`+job.ID+`.jpg`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
