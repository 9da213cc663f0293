package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/zedsoft/identity-store/db/migrations"
	"github.com/zedsoft/identity-store/internal/domain/entity"
	"github.com/zedsoft/identity-store/internal/events"
	"github.com/zedsoft/identity-store/internal/infrastructure/sqlstore"
)

// testStores builds a role and user store over a fresh sqlite-backed unit of
// work with the real schema applied.
func testStores(t *testing.T) (*UserStore, *RoleStore) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	schema, err := migrations.FS.ReadFile("000001_init.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	session := sqlstore.New(db)
	roles := NewRoleStore(session)
	users := NewUserStore(session, roles)
	return users, roles
}

func mustRole(t *testing.T, roles *RoleStore, name string) *entity.Role {
	t.Helper()
	r, err := entity.NewRole(name)
	if err != nil {
		t.Fatalf("NewRole(%q): %v", name, err)
	}
	if err := roles.Create(context.Background(), r); err != nil {
		t.Fatalf("create role %q: %v", name, err)
	}
	return r
}

func mustUser(t *testing.T, users *UserStore, name string) *entity.User {
	t.Helper()
	u, err := entity.NewUser(name)
	if err != nil {
		t.Fatalf("NewUser(%q): %v", name, err)
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %q: %v", name, err)
	}
	return u
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
