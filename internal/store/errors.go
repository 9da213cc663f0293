package store

import (
	"errors"

	"github.com/zedsoft/identity-store/internal/domain/entity"
)

var (
	// ErrInvalidArgument mirrors entity.ErrInvalidArgument so callers can
	// match validation failures without importing the entity package.
	ErrInvalidArgument = entity.ErrInvalidArgument

	// ErrRoleNotFound reports a failed role-name resolution during a
	// role-membership mutation. Simple lookups never return it; they report
	// absence as a nil result.
	ErrRoleNotFound = errors.New("role not found")

	// ErrStoreClosed reports an operation on a store after Close.
	ErrStoreClosed = errors.New("store is closed")
)
