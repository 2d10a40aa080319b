package service

import (
	"errors"

	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/sentinel"
)

// wrapStoreErr translates store sentinels into domain errors. Domain errors
// raised inside callbacks pass through untouched.
func wrapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeStorage, msg)
	}
}

// toValidation converts model invariant violations into validation errors.
func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}
