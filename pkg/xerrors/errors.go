package xerrors

import "errors"

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input provided")
)

// Dispatch pipeline
var (
	ErrConfigNotFound       = errors.New("notification configuration not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDeliveryNotFound     = errors.New("delivery record not found")
	ErrInvalidChannel       = errors.New("invalid notification channel")
	ErrInvalidType          = errors.New("invalid notification type")
	ErrQueueUnavailable     = errors.New("channel job queue unavailable")
)
