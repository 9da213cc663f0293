package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zedsoft/identity-store/internal/domain/entity"
)

const userColumns = `id, username, email, email_confirmed, password_hash, security_stamp,
	phone_number, phone_number_confirmed, two_factor_enabled, lockout_end_utc,
	lockout_enabled, access_failed_count, created_at, updated_at`

// GetUser returns the user for id with all three membership sets loaded, or
// nil if not found. It returns an error only for database failures, not for
// missing rows.
func (s *Session) GetUser(ctx context.Context, id string) (*entity.User, error) {
	row := s.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return s.scanAndLoad(ctx, row)
}

// FindUserByName returns the user whose username matches case-insensitively,
// or nil if not found.
func (s *Session) FindUserByName(ctx context.Context, userName string) (*entity.User, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, userName)
	return s.scanAndLoad(ctx, row)
}

// FindUserByEmail returns the user whose email matches case-insensitively,
// or nil if not found.
func (s *Session) FindUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email IS NOT NULL AND lower(email) = lower($1)`, email)
	return s.scanAndLoad(ctx, row)
}

// FindUserByLogin returns the user owning a structurally equal login, or nil
// if none does. (provider, key) is unique across users by convention, not by
// constraint; the first match wins.
func (s *Session) FindUserByLogin(ctx context.Context, login entity.Login) (*entity.User, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (
			SELECT user_id FROM user_logins WHERE login_provider = $1 AND provider_key = $2
		) ORDER BY id LIMIT 1`,
		login.LoginProvider, login.ProviderKey)
	return s.scanAndLoad(ctx, row)
}

// ListUsers returns all users ordered by username, with membership sets
// loaded.
func (s *Session) ListUsers(ctx context.Context) ([]*entity.User, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY lower(username)`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range users {
		if err := s.loadSets(ctx, u); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// SaveUser inserts or updates the user row and rewrites its membership rows
// so the tables mirror the in-memory sets. Assigns the surrogate key and
// CreatedAt on first save; bumps UpdatedAt on every save.
func (s *Session) SaveUser(ctx context.Context, u *entity.User) error {
	if u == nil {
		return errors.New("sqlstore: nil user")
	}
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	var lockout sql.NullInt64
	if u.LockoutEndUTC != nil {
		lockout = sql.NullInt64{Int64: toMillis(*u.LockoutEndUTC), Valid: true}
	}

	_, err := s.q().ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			email_confirmed = EXCLUDED.email_confirmed,
			password_hash = EXCLUDED.password_hash,
			security_stamp = EXCLUDED.security_stamp,
			phone_number = EXCLUDED.phone_number,
			phone_number_confirmed = EXCLUDED.phone_number_confirmed,
			two_factor_enabled = EXCLUDED.two_factor_enabled,
			lockout_end_utc = EXCLUDED.lockout_end_utc,
			lockout_enabled = EXCLUDED.lockout_enabled,
			access_failed_count = EXCLUDED.access_failed_count,
			updated_at = EXCLUDED.updated_at
	`, u.ID, u.UserName, nullable(u.Email), u.EmailConfirmed, nullable(u.PasswordHash),
		nullable(u.SecurityStamp), nullable(u.PhoneNumber), u.PhoneNumberConfirmed,
		u.TwoFactorEnabled, lockout, u.LockoutEnabled, u.AccessFailedCount,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		return err
	}
	return s.saveSets(ctx, u)
}

// DeleteUser removes the user row and all of its login, claim and role-link
// rows. Roles themselves survive.
func (s *Session) DeleteUser(ctx context.Context, u *entity.User) error {
	if u == nil || u.ID == "" {
		return errors.New("sqlstore: user has no id")
	}
	for _, stmt := range []string{
		`DELETE FROM user_claims WHERE user_id = $1`,
		`DELETE FROM user_logins WHERE user_id = $1`,
		`DELETE FROM user_roles WHERE user_id = $1`,
		`DELETE FROM users WHERE id = $1`,
	} {
		if _, err := s.q().ExecContext(ctx, stmt, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) saveSets(ctx context.Context, u *entity.User) error {
	if _, err := s.q().ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, r := range u.Roles {
		if r.ID == "" {
			return fmt.Errorf("sqlstore: user %s holds unsaved role %q", u.ID, r.Name)
		}
		if _, err := s.q().ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, u.ID, r.ID); err != nil {
			return err
		}
	}

	if _, err := s.q().ExecContext(ctx, `DELETE FROM user_logins WHERE user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, l := range u.Logins {
		if _, err := s.q().ExecContext(ctx,
			`INSERT INTO user_logins (user_id, login_provider, provider_key) VALUES ($1, $2, $3)`,
			u.ID, l.LoginProvider, l.ProviderKey); err != nil {
			return err
		}
	}

	if _, err := s.q().ExecContext(ctx, `DELETE FROM user_claims WHERE user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, c := range u.Claims {
		if _, err := s.q().ExecContext(ctx,
			`INSERT INTO user_claims (user_id, claim_type, claim_value) VALUES ($1, $2, $3)`,
			u.ID, c.ClaimType, c.ClaimValue); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) loadSets(ctx context.Context, u *entity.User) error {
	roles, err := s.q().QueryContext(ctx, `
		SELECT r.id, r.name, r.created_at, r.updated_at
		FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY lower(r.name)
	`, u.ID)
	if err != nil {
		return err
	}
	defer func() { _ = roles.Close() }()
	u.Roles = []*entity.Role{}
	for roles.Next() {
		r, err := scanRole(roles)
		if err != nil {
			return err
		}
		u.Roles = append(u.Roles, r)
	}
	if err := roles.Err(); err != nil {
		return err
	}

	logins, err := s.q().QueryContext(ctx, `
		SELECT login_provider, provider_key FROM user_logins
		WHERE user_id = $1 ORDER BY login_provider, provider_key
	`, u.ID)
	if err != nil {
		return err
	}
	defer func() { _ = logins.Close() }()
	u.Logins = []entity.Login{}
	for logins.Next() {
		var l entity.Login
		if err := logins.Scan(&l.LoginProvider, &l.ProviderKey); err != nil {
			return err
		}
		u.Logins = append(u.Logins, l)
	}
	if err := logins.Err(); err != nil {
		return err
	}

	claims, err := s.q().QueryContext(ctx, `
		SELECT claim_type, claim_value FROM user_claims
		WHERE user_id = $1 ORDER BY claim_type, claim_value
	`, u.ID)
	if err != nil {
		return err
	}
	defer func() { _ = claims.Close() }()
	u.Claims = []entity.Claim{}
	for claims.Next() {
		var c entity.Claim
		if err := claims.Scan(&c.ClaimType, &c.ClaimValue); err != nil {
			return err
		}
		u.Claims = append(u.Claims, c)
	}
	return claims.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		u                            entity.User
		email, hash, stamp, phone    sql.NullString
		lockout                      sql.NullInt64
		createdMillis, updatedMillis int64
	)
	err := row.Scan(&u.ID, &u.UserName, &email, &u.EmailConfirmed, &hash, &stamp,
		&phone, &u.PhoneNumberConfirmed, &u.TwoFactorEnabled, &lockout,
		&u.LockoutEnabled, &u.AccessFailedCount, &createdMillis, &updatedMillis)
	if err != nil {
		return nil, err
	}
	u.Email = stringOrEmpty(email)
	u.PasswordHash = stringOrEmpty(hash)
	u.SecurityStamp = stringOrEmpty(stamp)
	u.PhoneNumber = stringOrEmpty(phone)
	if lockout.Valid {
		t := fromMillis(lockout.Int64)
		u.LockoutEndUTC = &t
	}
	u.CreatedAt = fromMillis(createdMillis)
	u.UpdatedAt = fromMillis(updatedMillis)
	return &u, nil
}

// scanAndLoad turns a single-row query into a fully loaded user, mapping
// sql.ErrNoRows onto the (nil, nil) absence convention.
func (s *Session) scanAndLoad(ctx context.Context, row *sql.Row) (*entity.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadSets(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
