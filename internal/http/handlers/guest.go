package handlers

import (
	"net/http"

	"github.com/blessandsoul/glow-server/internal/middleware"
)

// JobsCreateGuest handles POST /v1/jobs/guest: one anonymous trial job per
// session token. The token comes from the form or the X-Session-ID header.
func (a *App) JobsCreateGuest(w http.ResponseWriter, r *http.Request) {
	input, ok := a.readSubmission(r)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}
	if sessionID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session_id required")
		return
	}

	res, err := a.Orch.CreateGuestJob(r.Context(), sessionID, input)
	if err != nil {
		a.Logger.Warn().
			Err(err).
			Str("country", middleware.CountryFromContext(r.Context())).
			Msg("guest trial rejected")
		a.domainError(w, err)
		return
	}

	a.Logger.Info().
		Str("job_id", res.Job.ID).
		Str("country", middleware.CountryFromContext(r.Context())).
		Msg("guest trial consumed")
	a.json(w, http.StatusCreated, createResponseFrom(a, res))
}
