package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDailyLimitReached   = errors.New("daily limit reached")
	ErrGuestDemoExhausted  = errors.New("guest demo exhausted")
	ErrInvalidFile         = errors.New("invalid file")
	ErrTooManyFiles        = errors.New("too many files")
	ErrBatchNotAllowed     = errors.New("batch upload not allowed")
	ErrJobNotReady         = errors.New("job not ready")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)
