package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blessandsoul/glow-server/internal/branding"
	"github.com/blessandsoul/glow-server/internal/domain"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/middleware"
	"github.com/blessandsoul/glow-server/internal/orchestrator"
)

// App is the handler container; everything it needs is injected at startup.
type App struct {
	Config   *infra.Config
	Logger   zerolog.Logger
	Orch     *orchestrator.Orchestrator
	Batch    *orchestrator.BatchCoordinator
	Jobs     domain.JobRepository
	Ledger   domain.CreditLedger
	Quota    domain.QuotaTracker
	Composer *branding.Composer
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// domainError maps sentinel errors onto the HTTP taxonomy.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this operation")
	case errors.Is(err, domain.ErrDailyLimitReached):
		a.error(w, http.StatusTooManyRequests, "daily_limit_reached", "daily processing limit reached")
	case errors.Is(err, domain.ErrGuestDemoExhausted):
		a.error(w, http.StatusForbidden, "guest_demo_exhausted", "the free trial for this session was already used")
	case errors.Is(err, domain.ErrInvalidFile):
		a.error(w, http.StatusBadRequest, "invalid_file", err.Error())
	case errors.Is(err, domain.ErrTooManyFiles):
		a.error(w, http.StatusBadRequest, "too_many_files", err.Error())
	case errors.Is(err, domain.ErrBatchNotAllowed):
		a.error(w, http.StatusForbidden, "batch_not_allowed", "batch upload is not available on this plan")
	case errors.Is(err, domain.ErrJobNotReady):
		a.error(w, http.StatusConflict, "job_not_ready", "job has not finished processing")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		a.Logger.Error().Err(err).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// optionalUserID resolves the requester on routes that admit both guests and
// owners, where the auth middleware is not mounted.
func (a *App) optionalUserID(r *http.Request) string {
	if id := a.currentUserID(r); id != "" {
		return id
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	claims, err := middleware.VerifyJWT(a.Config.JWTSecret, parts[1])
	if err != nil {
		return ""
	}
	return claims.Sub
}

func (a *App) refURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimRight(a.Config.StorageBaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}
