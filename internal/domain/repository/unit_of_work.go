package repository

import (
	"context"

	"github.com/zedsoft/identity-store/internal/domain/entity"
)

// UnitOfWork is the transactional collaborator the stores persist through.
// A store instance is bound to exactly one unit of work and never spans two
// for a single operation; transaction discipline (Begin/Commit/Rollback
// around mutations) belongs to the caller.
//
// Get and Find methods return (nil, nil) when no row matches. Save is an
// insert-or-update and assigns the surrogate key on first save. Delete of a
// user severs its logins, claims and role links; delete of a role severs its
// role links but never the users holding them.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	GetUser(ctx context.Context, id string) (*entity.User, error)
	FindUserByName(ctx context.Context, userName string) (*entity.User, error)
	FindUserByEmail(ctx context.Context, email string) (*entity.User, error)
	FindUserByLogin(ctx context.Context, login entity.Login) (*entity.User, error)
	ListUsers(ctx context.Context) ([]*entity.User, error)
	SaveUser(ctx context.Context, u *entity.User) error
	DeleteUser(ctx context.Context, u *entity.User) error

	GetRole(ctx context.Context, id string) (*entity.Role, error)
	FindRoleByName(ctx context.Context, name string) (*entity.Role, error)
	ListRoles(ctx context.Context) ([]*entity.Role, error)
	SaveRole(ctx context.Context, r *entity.Role) error
	DeleteRole(ctx context.Context, r *entity.Role) error
}
