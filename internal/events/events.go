// Package events carries identity change notifications to interested
// consumers over RabbitMQ. Publishing is optional and best-effort; stores
// never fail an operation because a notification could not be delivered.
package events

import (
	"context"
	"time"
)

// Event types published by the stores.
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
	RoleCreated = "role.created"
	RoleUpdated = "role.updated"
	RoleDeleted = "role.deleted"
)

// Event is the JSON payload put on the queue for each identity change.
type Event struct {
	Type     string    `json:"type"`
	EntityID string    `json:"entity_id"`
	Name     string    `json:"name,omitempty"` // username or role name
	At       time.Time `json:"at"`
}

// Publisher delivers identity events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
