package handlers

import (
	"net/http"

	"github.com/blessandsoul/glow-server/internal/infra"
)

// JobsStats handles GET /v1/jobs/stats for the authenticated owner.
func (a *App) JobsStats(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	stats, err := a.Jobs.Stats(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"total":         stats.Total,
		"processing":    stats.Processing,
		"done":          stats.Done,
		"failed":        stats.Failed,
		"credits_spent": stats.CreditsSpent,
	})
}

// DailyUsage handles GET /v1/jobs/daily-usage. The shape follows the billing
// regime: quota position in flat-quota mode, credit balance otherwise.
func (a *App) DailyUsage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if a.Orch.Mode() == infra.BillingModeDailyQuota {
		usage, err := a.Quota.Usage(r.Context(), userID)
		if err != nil {
			a.domainError(w, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{
			"mode":      string(infra.BillingModeDailyQuota),
			"used":      usage.Used,
			"limit":     usage.Limit,
			"resets_at": usage.ResetsAt,
		})
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"mode":              string(infra.BillingModeCredits),
		"credits_remaining": balance,
	})
}
