package domain

// Plan enumerates billing plans.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// PlanConfig carries the per-plan limits consulted by the batch coordinator.
type PlanConfig struct {
	MaxBatchSize       int
	BatchUploadEnabled bool
}

var planConfigs = map[Plan]PlanConfig{
	PlanFree: {MaxBatchSize: 0, BatchUploadEnabled: false},
	PlanPro:  {MaxBatchSize: 10, BatchUploadEnabled: true},
}

// PlanConfigFor returns the configuration for a plan, defaulting to the free
// plan for unknown values.
func PlanConfigFor(plan Plan) PlanConfig {
	if cfg, ok := planConfigs[plan]; ok {
		return cfg
	}
	return planConfigs[PlanFree]
}
