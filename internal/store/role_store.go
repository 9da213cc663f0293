// Package store implements the identity stores: repository-style components
// exposing CRUD and specialized lookups for roles and users over a single
// unit of work.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zedsoft/identity-store/internal/domain/entity"
	"github.com/zedsoft/identity-store/internal/domain/repository"
	"github.com/zedsoft/identity-store/internal/events"
)

// RoleStore persists roles through one unit of work. Logger and Events are
// optional; when set, failures on those side channels are logged and never
// fail the store operation. Not safe for concurrent use.
type RoleStore struct {
	uow repository.UnitOfWork

	Logger *logrus.Logger
	Events events.Publisher

	closed bool
}

// NewRoleStore returns a role store bound to the given unit of work.
func NewRoleStore(uow repository.UnitOfWork) *RoleStore {
	return &RoleStore{uow: uow}
}

// FindByID returns the role for id, or nil if not found. A missing id is not
// an error.
func (s *RoleStore) FindByID(ctx context.Context, id string) (*entity.Role, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.uow.GetRole(ctx, id)
}

// FindByName returns the role whose name matches case-insensitively, or nil
// if not found.
func (s *RoleStore) FindByName(ctx context.Context, name string) (*entity.Role, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	return s.uow.FindRoleByName(ctx, name)
}

// Create inserts or updates the role. An already-persisted role is updated
// in place; callers must not rely on a distinct "not found" outcome.
func (s *RoleStore) Create(ctx context.Context, role *entity.Role) error {
	if s.closed {
		return ErrStoreClosed
	}
	if role == nil {
		return fmt.Errorf("%w: role is required", ErrInvalidArgument)
	}
	isNew := role.ID == ""
	if err := s.uow.SaveRole(ctx, role); err != nil {
		return err
	}
	eventType := events.RoleUpdated
	if isNew {
		eventType = events.RoleCreated
	}
	s.publish(ctx, events.Event{Type: eventType, EntityID: role.ID, Name: role.Name})
	return nil
}

// Update is an alias for Create; both are insert-or-update.
func (s *RoleStore) Update(ctx context.Context, role *entity.Role) error {
	return s.Create(ctx, role)
}

// Delete severs the role's membership links and removes the role. Users
// holding the role are untouched.
func (s *RoleStore) Delete(ctx context.Context, role *entity.Role) error {
	if s.closed {
		return ErrStoreClosed
	}
	if role == nil {
		return fmt.Errorf("%w: role is required", ErrInvalidArgument)
	}
	if err := s.uow.DeleteRole(ctx, role); err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.RoleDeleted, EntityID: role.ID, Name: role.Name})
	return nil
}

// Roles returns all roles ordered by name.
func (s *RoleStore) Roles(ctx context.Context) ([]*entity.Role, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.uow.ListRoles(ctx)
}

// Close marks the store closed. Every subsequent operation fails with
// ErrStoreClosed. The shared unit of work is left open for its owner.
func (s *RoleStore) Close() {
	s.closed = true
}

func (s *RoleStore) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	e.At = time.Now().UTC()
	if err := s.Events.Publish(ctx, e); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("event", e.Type).Warn("event publish failed")
	}
}
