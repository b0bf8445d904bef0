package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rentwheel/api/internal/repositories"
)

var (
	// ErrInvalidInput signals malformed or out-of-range caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller may not perform the operation on the entity.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates the entity's current state or a concurrent writer prevents the operation.
	ErrConflict = errors.New("conflict")
	// ErrDependency indicates a downstream store or broker failed mid-operation.
	ErrDependency = errors.New("dependency unavailable")
)

func mapRepositoryError(err error, resource string) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrInvalidInput, ErrNotFound, ErrForbidden, ErrConflict, ErrDependency} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var coded *repositories.Error
	if errors.As(err, &coded) && coded.IsConflict() {
		return fmt.Errorf("%w: %s", ErrConflict, coded.Message)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s not found", ErrNotFound, resource)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s was modified concurrently", ErrConflict, resource)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDependency, err)
		}
	}
	return err
}
