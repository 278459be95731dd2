package impl

import "errors"

var (
	ErrEmptyEmail       = errors.New("empty email")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCode        = errors.New("empty code")
	ErrTooFewNames      = errors.New("at least two names required")
	ErrIntervalTooShort = errors.New("check-in interval below minimum")
	ErrGraceTooShort    = errors.New("grace period below minimum")
	ErrWrongStep        = errors.New("session is not on this step")
)
