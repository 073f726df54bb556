package models

import "github.com/pkg/errors"

var (
	ErrAlreadyActive   = errors.New("tracking session already active")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrInternal        = errors.New("internal error")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrRateLimited     = errors.New("rate limited")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyResolved = errors.New("alert already resolved")
)
