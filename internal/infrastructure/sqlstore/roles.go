package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zedsoft/identity-store/internal/domain/entity"
)

// GetRole returns the role for id, or nil if not found. It returns an error
// only for database failures, not for missing rows.
func (s *Session) GetRole(ctx context.Context, id string) (*entity.Role, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, id)
	r, err := scanRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// FindRoleByName returns the role whose name matches case-insensitively, or
// nil if not found.
func (s *Session) FindRoleByName(ctx context.Context, name string) (*entity.Role, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE lower(name) = lower($1)`, name)
	r, err := scanRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ListRoles returns all roles ordered by name.
func (s *Session) ListRoles(ctx context.Context) ([]*entity.Role, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM roles ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var roles []*entity.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// SaveRole inserts or updates the role row. Assigns the surrogate key and
// CreatedAt on first save; bumps UpdatedAt on every save.
func (s *Session) SaveRole(ctx context.Context, r *entity.Role) error {
	if r == nil {
		return errors.New("sqlstore: nil role")
	}
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.q().ExecContext(ctx, `
		INSERT INTO roles (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.Name, toMillis(r.CreatedAt), toMillis(r.UpdatedAt))
	return err
}

// DeleteRole severs the role's membership links, then removes the role row.
// Users holding the role are never deleted.
func (s *Session) DeleteRole(ctx context.Context, r *entity.Role) error {
	if r == nil || r.ID == "" {
		return errors.New("sqlstore: role has no id")
	}
	if _, err := s.q().ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, r.ID); err != nil {
		return err
	}
	_, err := s.q().ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, r.ID)
	return err
}

func scanRole(row rowScanner) (*entity.Role, error) {
	var (
		r                            entity.Role
		createdMillis, updatedMillis int64
	)
	if err := row.Scan(&r.ID, &r.Name, &createdMillis, &updatedMillis); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdMillis)
	r.UpdatedAt = fromMillis(updatedMillis)
	return &r, nil
}
