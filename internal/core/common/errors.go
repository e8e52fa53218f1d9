package common

import (
	"errors"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/store"
)

// StoreError translates a store sentinel into the application taxonomy.
// Errors that already carry a kind pass through unchanged.
func StoreError(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NewNotFound(resource, id)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.NewConflict("%s already exists", resource)
	case errors.Is(err, store.ErrVersionConflict):
		return apperr.NewConflict("%s %s was modified concurrently", resource, id)
	case errors.Is(err, store.ErrRevisionConflict):
		return apperr.NewConflict("%s %s was modified concurrently", resource, id)
	case errors.Is(err, store.ErrUnavailable):
		return apperr.NewTransient(op, err)
	}
	return apperr.NewInternal(op, err)
}
