package entity

import "time"

// Role represents an authorization role
// Many-to-many with User via user_roles
// kept minimal for domain use
type Role struct {
	ID        string
	Name      string `validate:"notblank"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRole creates a role with the required name. The surrogate ID is
// assigned by the unit of work at first save.
func NewRole(name string) (*Role, error) {
	r := &Role{Name: name}
	if err := validateStruct(r); err != nil {
		return nil, err
	}
	return r, nil
}
