package ingest

import "errors"

var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("not found")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrStorage               = errors.New("storage error")
)

// Code returns the stable machine-readable code for an ingest error, or
// INTERNAL_ERROR when err is not one of the pipeline kinds.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrClassifierUnavailable):
		return "CLASSIFIER_UNAVAILABLE"
	case errors.Is(err, ErrStorage):
		return "STORAGE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrClassifierUnavailable):
		return "classifier_unavailable"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}
