package app

import "errors"

var (
	// ErrUserIDRequired is returned when a caller supplies no user id.
	ErrUserIDRequired = errors.New("user id required")

	// ErrDateRequired is returned when a build is requested without a date.
	ErrDateRequired = errors.New("date required")

	// ErrInvalidDate is returned when the date is not a YYYY-MM-DD calendar day.
	ErrInvalidDate = errors.New("invalid date")

	// ErrArtifactNotFound is returned when the referenced pending dream is
	// absent or does not match the supplied artifact id. Handlers surface it
	// as a 404.
	ErrArtifactNotFound = errors.New("dream artifact not found")

	// ErrReflectionNotFound covers both a missing record and an owner
	// mismatch so the poll endpoint never leaks other users' ids.
	ErrReflectionNotFound = errors.New("reflection not found")
)
