package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zedsoft/identity-store/internal/domain/entity"
	"github.com/zedsoft/identity-store/internal/domain/repository"
	"github.com/zedsoft/identity-store/internal/events"
)

// UserStore persists users through one unit of work and resolves roles
// through the RoleStore. Redis, ES, Events and Logger are optional; when
// set, cache, index and event failures are logged and never fail the store
// operation. Not safe for concurrent use.
//
// Accessor methods mutate the user in memory only; the caller persists with
// an explicit Update. The exceptions are RemoveLogin, RemoveFromRole and
// RemoveClaim, which persist before returning.
type UserStore struct {
	uow   repository.UnitOfWork
	roles *RoleStore

	Logger       *logrus.Logger
	Redis        *redis.Client
	CacheTTL     time.Duration
	ES           *elasticsearch.Client
	ESUsersIndex string
	Events       events.Publisher

	closed bool
}

// NewUserStore returns a user store bound to the given unit of work and role
// store. Both stores must share the same unit of work.
func NewUserStore(uow repository.UnitOfWork, roles *RoleStore) *UserStore {
	return &UserStore{uow: uow, roles: roles}
}

// Create inserts or updates the user together with its membership rows.
func (s *UserStore) Create(ctx context.Context, u *entity.User) error {
	if s.closed {
		return ErrStoreClosed
	}
	if u == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	isNew := u.ID == ""
	if err := s.uow.SaveUser(ctx, u); err != nil {
		return err
	}
	s.invalidateCache(ctx, u.ID)
	s.indexUser(ctx, u)
	eventType := events.UserUpdated
	if isNew {
		eventType = events.UserCreated
	}
	s.publish(ctx, events.Event{Type: eventType, EntityID: u.ID, Name: u.UserName})
	return nil
}

// Update is an alias for Create; both are insert-or-update.
func (s *UserStore) Update(ctx context.Context, u *entity.User) error {
	return s.Create(ctx, u)
}

// Delete removes the user and all of its logins, claims and role links.
func (s *UserStore) Delete(ctx context.Context, u *entity.User) error {
	if s.closed {
		return ErrStoreClosed
	}
	if u == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	if err := s.uow.DeleteUser(ctx, u); err != nil {
		return err
	}
	s.invalidateCache(ctx, u.ID)
	s.deleteUserDoc(ctx, u.ID)
	s.publish(ctx, events.Event{Type: events.UserDeleted, EntityID: u.ID, Name: u.UserName})
	return nil
}

// FindByID returns the user for id, or nil if not found. Reads through the
// cache when one is configured.
func (s *UserStore) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if u, ok := s.cachedUser(ctx, id); ok {
		return u, nil
	}
	u, err := s.uow.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u != nil {
		s.cacheUser(ctx, u)
	}
	return u, nil
}

// FindByName returns the user whose username matches case-insensitively, or
// nil if not found.
func (s *UserStore) FindByName(ctx context.Context, userName string) (*entity.User, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if strings.TrimSpace(userName) == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}
	return s.uow.FindUserByName(ctx, userName)
}

// FindByEmail returns the user whose email matches case-insensitively, or
// nil if not found.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	return s.uow.FindUserByEmail(ctx, email)
}

// Users returns all users ordered by username.
func (s *UserStore) Users(ctx context.Context) ([]*entity.User, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.uow.ListUsers(ctx)
}

// Close marks the store closed. Every subsequent operation fails with
// ErrStoreClosed. The shared unit of work is left open for its owner.
func (s *UserStore) Close() {
	s.closed = true
}

// guard is the shared precondition of the in-memory accessors.
func (s *UserStore) guard(u *entity.User) error {
	if s.closed {
		return ErrStoreClosed
	}
	if u == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	return nil
}

// Email accessors.

func (s *UserStore) GetEmail(u *entity.User) (string, error) {
	if err := s.guard(u); err != nil {
		return "", err
	}
	return u.Email, nil
}

func (s *UserStore) SetEmail(u *entity.User, email string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.Email = email
	return nil
}

func (s *UserStore) GetEmailConfirmed(u *entity.User) (bool, error) {
	if err := s.guard(u); err != nil {
		return false, err
	}
	return u.EmailConfirmed, nil
}

func (s *UserStore) SetEmailConfirmed(u *entity.User, confirmed bool) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.EmailConfirmed = confirmed
	return nil
}

// Password accessors. The hash is opaque to this layer.

func (s *UserStore) GetPasswordHash(u *entity.User) (string, error) {
	if err := s.guard(u); err != nil {
		return "", err
	}
	return u.PasswordHash, nil
}

func (s *UserStore) SetPasswordHash(u *entity.User, hash string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (s *UserStore) HasPassword(u *entity.User) (bool, error) {
	if err := s.guard(u); err != nil {
		return false, err
	}
	return u.PasswordHash != "", nil
}

// Security stamp accessors.

func (s *UserStore) GetSecurityStamp(u *entity.User) (string, error) {
	if err := s.guard(u); err != nil {
		return "", err
	}
	return u.SecurityStamp, nil
}

func (s *UserStore) SetSecurityStamp(u *entity.User, stamp string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.SecurityStamp = stamp
	return nil
}

// Two-factor accessors.

func (s *UserStore) GetTwoFactorEnabled(u *entity.User) (bool, error) {
	if err := s.guard(u); err != nil {
		return false, err
	}
	return u.TwoFactorEnabled, nil
}

func (s *UserStore) SetTwoFactorEnabled(u *entity.User, enabled bool) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.TwoFactorEnabled = enabled
	return nil
}

// Phone accessors.

func (s *UserStore) GetPhoneNumber(u *entity.User) (string, error) {
	if err := s.guard(u); err != nil {
		return "", err
	}
	return u.PhoneNumber, nil
}

func (s *UserStore) SetPhoneNumber(u *entity.User, phone string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.PhoneNumber = phone
	return nil
}

func (s *UserStore) GetPhoneNumberConfirmed(u *entity.User) (bool, error) {
	if err := s.guard(u); err != nil {
		return false, err
	}
	return u.PhoneNumberConfirmed, nil
}

func (s *UserStore) SetPhoneNumberConfirmed(u *entity.User, confirmed bool) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.PhoneNumberConfirmed = confirmed
	return nil
}

// Lockout accessors.

func (s *UserStore) GetLockoutEnabled(u *entity.User) (bool, error) {
	if err := s.guard(u); err != nil {
		return false, err
	}
	return u.LockoutEnabled, nil
}

func (s *UserStore) SetLockoutEnabled(u *entity.User, enabled bool) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.LockoutEnabled = enabled
	return nil
}

// GetLockoutEndDate returns the UTC end of the user's lockout. The zero time
// means not locked out; any end in the past also counts as not locked out.
func (s *UserStore) GetLockoutEndDate(u *entity.User) (time.Time, error) {
	if err := s.guard(u); err != nil {
		return time.Time{}, err
	}
	if u.LockoutEndUTC == nil {
		return time.Time{}, nil
	}
	return u.LockoutEndUTC.UTC(), nil
}

// SetLockoutEndDate locks the user out until end. The zero time clears the
// lockout.
func (s *UserStore) SetLockoutEndDate(u *entity.User, end time.Time) error {
	if err := s.guard(u); err != nil {
		return err
	}
	if end.IsZero() {
		u.LockoutEndUTC = nil
		return nil
	}
	utc := end.UTC()
	u.LockoutEndUTC = &utc
	return nil
}

// IncrementAccessFailedCount records a failed access attempt and returns the
// new count.
func (s *UserStore) IncrementAccessFailedCount(u *entity.User) (int, error) {
	if err := s.guard(u); err != nil {
		return 0, err
	}
	u.AccessFailedCount++
	return u.AccessFailedCount, nil
}

func (s *UserStore) ResetAccessFailedCount(u *entity.User) error {
	if err := s.guard(u); err != nil {
		return err
	}
	u.AccessFailedCount = 0
	return nil
}

func (s *UserStore) GetAccessFailedCount(u *entity.User) (int, error) {
	if err := s.guard(u); err != nil {
		return 0, err
	}
	return u.AccessFailedCount, nil
}

// Login accessors.

// AddLogin adds the login to the user's set in memory. Adding an equal
// (provider, key) pair again is a no-op; the caller persists with Update.
func (s *UserStore) AddLogin(u *entity.User, provider, key string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	login, err := entity.NewLogin(provider, key)
	if err != nil {
		return err
	}
	u.AddLogin(login)
	return nil
}

// RemoveLogin removes the structurally equal login and persists the user.
// Removing an absent login is a no-op and does not persist.
func (s *UserStore) RemoveLogin(ctx context.Context, u *entity.User, provider, key string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	login, err := entity.NewLogin(provider, key)
	if err != nil {
		return err
	}
	if !u.RemoveLogin(login) {
		return nil
	}
	return s.Update(ctx, u)
}

// GetLogins returns the user's logins ordered by provider then key.
func (s *UserStore) GetLogins(u *entity.User) ([]entity.Login, error) {
	if err := s.guard(u); err != nil {
		return nil, err
	}
	out := make([]entity.Login, len(u.Logins))
	copy(out, u.Logins)
	return out, nil
}

// FindByLogin returns the user owning a structurally equal login, or nil if
// none does.
func (s *UserStore) FindByLogin(ctx context.Context, provider, key string) (*entity.User, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	login, err := entity.NewLogin(provider, key)
	if err != nil {
		return nil, err
	}
	return s.uow.FindUserByLogin(ctx, login)
}

// Role membership accessors.

// AddToRole resolves the role by case-insensitive name through the role
// store and adds it to the user's membership set in memory. Fails with
// ErrRoleNotFound when no such role exists; adding an existing membership is
// a no-op. The caller persists with Update.
func (s *UserStore) AddToRole(ctx context.Context, u *entity.User, roleName string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	if strings.TrimSpace(roleName) == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
	}
	u.AddRole(role)
	return nil
}

// RemoveFromRole resolves the role from the user's current membership set by
// case-insensitive name, removes it and persists the user. Fails with
// ErrRoleNotFound when the user is not a member.
func (s *UserStore) RemoveFromRole(ctx context.Context, u *entity.User, roleName string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	if strings.TrimSpace(roleName) == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	role := u.RoleByName(roleName)
	if role == nil {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
	}
	u.RemoveRole(role)
	return s.Update(ctx, u)
}

// GetRoles returns the names of the user's member roles in the set's
// current order: name-sorted after a load from the unit of work, insertion
// order for memberships added since.
func (s *UserStore) GetRoles(u *entity.User) ([]string, error) {
	if err := s.guard(u); err != nil {
		return nil, err
	}
	names := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		names[i] = r.Name
	}
	return names, nil
}

// IsInRole reports membership by comparing each stored role name lowered
// against roleName exactly as given. Unlike AddToRole and RemoveFromRole,
// the argument is not lowered: IsInRole(u, "Editor") is false even when
// AddToRole(u, "editor") succeeded.
func (s *UserStore) IsInRole(u *entity.User, roleName string) (bool, error) {
	if err := s.guard(u); err != nil {
		return false, err
	}
	if strings.TrimSpace(roleName) == "" {
		return false, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	for _, r := range u.Roles {
		if strings.ToLower(r.Name) == roleName {
			return true, nil
		}
	}
	return false, nil
}

// Claim accessors.

// AddClaim adds the claim to the user's set in memory. Adding an equal
// (type, value) pair again is a no-op; the caller persists with Update.
func (s *UserStore) AddClaim(u *entity.User, claimType, claimValue string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	claim, err := entity.NewClaim(claimType, claimValue)
	if err != nil {
		return err
	}
	u.AddClaim(claim)
	return nil
}

// RemoveClaim removes the structurally equal claim and persists the user.
// Removing an absent claim is a no-op and does not persist.
func (s *UserStore) RemoveClaim(ctx context.Context, u *entity.User, claimType, claimValue string) error {
	if err := s.guard(u); err != nil {
		return err
	}
	claim, err := entity.NewClaim(claimType, claimValue)
	if err != nil {
		return err
	}
	if !u.RemoveClaim(claim) {
		return nil
	}
	return s.Update(ctx, u)
}

// GetClaims returns the user's claims ordered by type then value.
func (s *UserStore) GetClaims(u *entity.User) ([]entity.Claim, error) {
	if err := s.guard(u); err != nil {
		return nil, err
	}
	out := make([]entity.Claim, len(u.Claims))
	copy(out, u.Claims)
	return out, nil
}

func (s *UserStore) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	e.At = time.Now().UTC()
	if err := s.Events.Publish(ctx, e); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("event", e.Type).Warn("event publish failed")
	}
}
