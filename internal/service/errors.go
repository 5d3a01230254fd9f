package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// Error taxonomy shared by every form workflow operation.
var (
	// ErrValidation marks caller input that can be corrected and resubmitted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to a form, project or version that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that lost a race with a concurrent writer.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrPersistence marks a failure of the document store or blob store.
	ErrPersistence = errors.New("persistence failure")
)

var (
	ErrFormNotFound         = fmt.Errorf("form %w", ErrNotFound)
	ErrProjectNotFound      = fmt.Errorf("project %w", ErrNotFound)
	ErrVersionNotFound      = fmt.Errorf("form version %w", ErrNotFound)
	ErrEmptyComments        = fmt.Errorf("%w: review comments are required", ErrValidation)
	ErrFileRequired         = fmt.Errorf("%w: file is required", ErrValidation)
	ErrFileTooLarge         = fmt.Errorf("%w: file exceeds maximum allowed size", ErrValidation)
	ErrFileTypeNotAllowed   = fmt.Errorf("%w: file type not allowed", ErrValidation)
	ErrUnknownFormType      = fmt.Errorf("%w: unknown form type", ErrValidation)
	ErrInvalidReviewStatus  = fmt.Errorf("%w: invalid review status", ErrValidation)
	ErrInvalidReviewerRole  = fmt.Errorf("%w: invalid reviewer role", ErrValidation)
	ErrInvalidProjectStatus = fmt.Errorf("%w: invalid project status", ErrValidation)
	ErrInvalidSubscription  = fmt.Errorf("%w: subscription needs exactly one of project, student or form", ErrValidation)
	ErrProjectFormsPending  = fmt.Errorf("%w: project still has unresolved forms", ErrValidation)
)

// IsValidationError reports whether err should be shown to the caller as correctable input.
func IsValidationError(err error) bool {
	if errors.Is(err, ErrValidation) {
		return true
	}
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// storeError translates repository failures into the taxonomy. notFound is returned for missing rows.
func storeError(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, repository.ErrRevisionConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrPersistence):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}
}
