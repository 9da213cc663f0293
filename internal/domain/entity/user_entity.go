package entity

import (
	"strings"
	"time"
)

// User is the aggregate root for the identity domain
// PasswordHash and SecurityStamp are opaque values supplied by the caller;
// this layer never hashes or verifies anything.
//
// Roles, Logins and Claims behave as sets: Add is a no-op on an equal
// element, Remove reports whether anything was removed. They are never nil
// after NewUser.
type User struct {
	ID                   string
	UserName             string `validate:"notblank"`
	Email                string
	EmailConfirmed       bool
	PasswordHash         string
	SecurityStamp        string
	PhoneNumber          string
	PhoneNumberConfirmed bool
	TwoFactorEnabled     bool
	LockoutEndUTC        *time.Time
	LockoutEnabled       bool
	AccessFailedCount    int

	Roles  []*Role
	Logins []Login
	Claims []Claim

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates a user with the required username and empty membership
// sets. The surrogate ID is assigned by the unit of work at first save.
func NewUser(userName string) (*User, error) {
	u := &User{
		UserName: userName,
		Roles:    []*Role{},
		Logins:   []Login{},
		Claims:   []Claim{},
	}
	if err := validateStruct(u); err != nil {
		return nil, err
	}
	return u, nil
}

// AddRole adds the role to the user's membership set. Returns false without
// modifying the set when the user already holds an equal role.
func (u *User) AddRole(r *Role) bool {
	if r == nil || u.hasRole(r) {
		return false
	}
	u.Roles = append(u.Roles, r)
	return true
}

// RemoveRole removes the role from the membership set, reporting whether it
// was present.
func (u *User) RemoveRole(r *Role) bool {
	if r == nil {
		return false
	}
	for i, existing := range u.Roles {
		if sameRole(existing, r) {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return true
		}
	}
	return false
}

// RoleByName returns the member role whose name matches case-insensitively,
// or nil when the user is not a member of such a role.
func (u *User) RoleByName(name string) *Role {
	lowered := strings.ToLower(name)
	for _, r := range u.Roles {
		if strings.ToLower(r.Name) == lowered {
			return r
		}
	}
	return nil
}

func (u *User) hasRole(r *Role) bool {
	for _, existing := range u.Roles {
		if sameRole(existing, r) {
			return true
		}
	}
	return false
}

// Roles are entities: equality is identity, by surrogate key once assigned.
func sameRole(a, b *Role) bool {
	if a == b {
		return true
	}
	return a.ID != "" && a.ID == b.ID
}

// AddLogin adds the login to the user's set. Returns false when a
// structurally equal login is already present.
func (u *User) AddLogin(l Login) bool {
	for _, existing := range u.Logins {
		if existing == l {
			return false
		}
	}
	u.Logins = append(u.Logins, l)
	return true
}

// RemoveLogin removes the structurally equal login, reporting whether it was
// present.
func (u *User) RemoveLogin(l Login) bool {
	for i, existing := range u.Logins {
		if existing == l {
			u.Logins = append(u.Logins[:i], u.Logins[i+1:]...)
			return true
		}
	}
	return false
}

// AddClaim adds the claim to the user's set. Returns false when a
// structurally equal claim is already present.
func (u *User) AddClaim(c Claim) bool {
	for _, existing := range u.Claims {
		if existing == c {
			return false
		}
	}
	u.Claims = append(u.Claims, c)
	return true
}

// RemoveClaim removes the structurally equal claim, reporting whether it was
// present.
func (u *User) RemoveClaim(c Claim) bool {
	for i, existing := range u.Claims {
		if existing == c {
			u.Claims = append(u.Claims[:i], u.Claims[i+1:]...)
			return true
		}
	}
	return false
}

// Login is an external login owned by a user. Value object: two logins are
// equal when provider and key match.
type Login struct {
	LoginProvider string `validate:"notblank"`
	ProviderKey   string `validate:"notblank"`
}

// NewLogin creates a login value object; both parts are required.
func NewLogin(provider, key string) (Login, error) {
	l := Login{LoginProvider: provider, ProviderKey: key}
	if err := validateStruct(l); err != nil {
		return Login{}, err
	}
	return l, nil
}

// Claim is a user claim. Value object: equality is type plus value.
type Claim struct {
	ClaimType  string `validate:"notblank"`
	ClaimValue string `validate:"notblank"`
}

// NewClaim creates a claim value object; both parts are required.
func NewClaim(claimType, claimValue string) (Claim, error) {
	c := Claim{ClaimType: claimType, ClaimValue: claimValue}
	if err := validateStruct(c); err != nil {
		return Claim{}, err
	}
	return c, nil
}
