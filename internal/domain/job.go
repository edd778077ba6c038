package domain

import "time"

// ProcessingType enumerates supported photo transformations. Each type maps
// to a credit cost in the orchestrator's cost table.
type ProcessingType string

const (
	ProcessingTypeEnhance  ProcessingType = "enhance"
	ProcessingTypeRestore  ProcessingType = "restore"
	ProcessingTypePortrait ProcessingType = "portrait"
	ProcessingTypeUpscale  ProcessingType = "upscale"
)

// JobStatus enumerates job lifecycle states. A job is created PROCESSING and
// transitions exactly once to DONE or FAILED; both are terminal.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is one submitted-photo-to-result processing attempt and its billing
// record. CreditCost is snapshotted from the cost table at creation time so
// later cost changes never affect existing jobs.
type Job struct {
	ID             string
	OwnerID        string // empty for guest jobs
	Status         JobStatus
	OriginalRef    string
	ResultRefs     []string
	ProcessingType ProcessingType
	CreditCost     int
	BatchID        string // empty for single submissions
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsGuest reports whether the job was submitted through the anonymous trial.
func (j Job) IsGuest() bool {
	return j.OwnerID == ""
}

// JobFilter narrows and pages a job listing.
type JobFilter struct {
	Status JobStatus // empty matches all
	Page   int
	Limit  int
}

// JobStats aggregates an owner's job history.
type JobStats struct {
	Total        int
	Processing   int
	Done         int
	Failed       int
	CreditsSpent int
}
