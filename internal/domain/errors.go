package domain

import "errors"

// Error kinds the HTTP layer maps to status codes. Wrap with
// fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrValidation marks a malformed request; rejected before any job exists.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound covers unknown job ids, unknown artifacts and requests
	// that match nothing in the last search result set.
	ErrNotFound = errors.New("not found")

	// ErrNotDownloadable marks an item explicitly flagged non-downloadable.
	ErrNotDownloadable = errors.New("item is not downloadable")

	// ErrResolutionFailed means no session-backed candidate was found
	// after exhausting all query variants.
	ErrResolutionFailed = errors.New("could not resolve a downloadable candidate")

	// ErrTimeout marks a layered timeout firing, distinct from generic failure.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidState marks a retry on a job that is still active.
	ErrInvalidState = errors.New("job is already in progress")

	// ErrMissingRetryData marks a retry with no reconstructable request.
	ErrMissingRetryData = errors.New("retry data unavailable for this job")

	// ErrTransferFailed marks a non-timeout transfer failure.
	ErrTransferFailed = errors.New("transfer failed")
)
