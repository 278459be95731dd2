package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpired           = errors.New("expired")
	ErrAlreadyReleased   = errors.New("already released")
	ErrConflict          = errors.New("conflict")
	ErrUpstreamFailure   = errors.New("upstream failure")
)
