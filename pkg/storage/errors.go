package storage

import (
	"errors"
	"fmt"

	"github.com/icebase/metastore/pkg/types"
)

// ErrNotFound is returned by slice lookups that find nothing, wrapped
// with the identity that was looked up.
var ErrNotFound = errors.New("storage: not found")

// EntityAlreadyExistsError is returned by an AtomicPersistence's
// WriteEntity when a create collides with an existing record, either by
// id or by active-name key. Existing is the conflicting stored entity.
type EntityAlreadyExistsError struct {
	Existing *types.Entity
}

func (e *EntityAlreadyExistsError) Error() string {
	return fmt.Sprintf("storage: entity already exists: id=%s name=%s", e.Existing.ID, e.Existing.Name)
}

// RetryOnConcurrencyError is returned by an AtomicPersistence write when
// the supplied original no longer matches the stored record's versions.
type RetryOnConcurrencyError struct {
	Reason string
}

func (e *RetryOnConcurrencyError) Error() string {
	return fmt.Sprintf("storage: retry on concurrency: %s", e.Reason)
}

// IsEntityAlreadyExists reports whether err (or a wrapped cause) is an
// *EntityAlreadyExistsError, and returns it.
func IsEntityAlreadyExists(err error) (*EntityAlreadyExistsError, bool) {
	var target *EntityAlreadyExistsError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsRetryOnConcurrency reports whether err (or a wrapped cause) is a
// *RetryOnConcurrencyError.
func IsRetryOnConcurrency(err error) bool {
	var target *RetryOnConcurrencyError
	return errors.As(err, &target)
}
