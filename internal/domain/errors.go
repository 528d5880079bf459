package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrNoCredentials = errors.New("no credentials available")
	ErrStalePrice    = errors.New("stale or invalid price")
	ErrCapExceeded   = errors.New("exposure cap exceeded")
)
