package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/observability"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// FormChangeListener is notified after every accepted form mutation.
type FormChangeListener interface {
	FormChanged(ctx context.Context, form models.FormSubmission)
}

// FormChangeListenerFunc adapts a function to FormChangeListener.
type FormChangeListenerFunc func(ctx context.Context, form models.FormSubmission)

// FormChanged calls f.
func (f FormChangeListenerFunc) FormChanged(ctx context.Context, form models.FormSubmission) {
	f(ctx, form)
}

// formWriter runs transactional read-modify-write cycles and notifies listeners of the result.
type formWriter struct {
	forms     repository.FormRepository
	listeners []FormChangeListener
	retries   int
	logger    zerolog.Logger
}

func newFormWriter(forms repository.FormRepository, retries int, logger zerolog.Logger, listeners ...FormChangeListener) *formWriter {
	if retries < 0 {
		retries = 0
	}
	return &formWriter{
		forms:     forms,
		listeners: listeners,
		retries:   retries,
		logger:    logger,
	}
}

// mutate applies fn to the form. A conflict with a concurrent writer re-runs the whole
// cycle against fresh state up to retries times before surfacing ErrConflict.
func (w *formWriter) mutate(ctx context.Context, op, formID string, fn repository.FormMutation) (models.FormSubmission, error) {
	var (
		form models.FormSubmission
		err  error
	)
	for attempt := 0; attempt <= w.retries; attempt++ {
		form, err = w.forms.Mutate(ctx, formID, fn)
		if !errors.Is(err, repository.ErrRevisionConflict) {
			break
		}
		observability.FormWriteConflicts().WithLabelValues(op).Inc()
		w.logger.Warn().Str("form_id", formID).Str("operation", op).Int("attempt", attempt+1).Msg("form write conflict")
	}
	if err != nil {
		return models.FormSubmission{}, storeError(op, err, ErrFormNotFound)
	}

	w.notify(ctx, form)
	return form, nil
}

func (w *formWriter) create(ctx context.Context, form *models.FormSubmission) error {
	if err := w.forms.Create(ctx, form); err != nil {
		return storeError("create form", err, ErrFormNotFound)
	}

	w.notify(ctx, *form)
	return nil
}

func (w *formWriter) notify(ctx context.Context, form models.FormSubmission) {
	for _, listener := range w.listeners {
		if listener != nil {
			listener.FormChanged(ctx, form)
		}
	}
}
