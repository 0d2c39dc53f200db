package services

import (
	"errors"

	"microcred/assessment-engine/internal/repositories"
)

// Caller-facing errors, surfaced verbatim by the HTTP layer.
var (
	ErrNotFound         = repositories.ErrNotFound
	ErrNotOwned         = errors.New("assessment is not owned by caller")
	ErrAlreadySubmitted = errors.New("assessment already submitted")
	ErrExpired          = errors.New("assessment expired")

	// ErrDuplicateSubmission maps the idempotency-key unique constraint.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	ErrInvalidResponse = errors.New("invalid response payload")
)

// External scoring backend errors. Rate-limit, timeout, and server errors
// are retried with backoff; invalid requests fail immediately.
var (
	ErrRateLimited     = errors.New("external service rate limited")
	ErrTimeout         = errors.New("external service timeout")
	ErrExternalService = errors.New("external service error")
	ErrInvalidRequest  = errors.New("external service rejected request")
)
