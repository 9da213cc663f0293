package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zedsoft/identity-store/db/migrations"
	"github.com/zedsoft/identity-store/internal/domain/entity"
)

func testSession(t *testing.T) *Session {
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
	return New(db)
}

func mustSaveRole(t *testing.T, s *Session, name string) *entity.Role {
	t.Helper()
	r, err := entity.NewRole(name)
	if err != nil {
		t.Fatalf("NewRole(%q): %v", name, err)
	}
	if err := s.SaveRole(context.Background(), r); err != nil {
		t.Fatalf("SaveRole(%q): %v", name, err)
	}
	return r
}

func mustSaveUser(t *testing.T, s *Session, name string) *entity.User {
	t.Helper()
	u, err := entity.NewUser(name)
	if err != nil {
		t.Fatalf("NewUser(%q): %v", name, err)
	}
	if err := s.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser(%q): %v", name, err)
	}
	return u
}

func TestSaveUserAssignsIdentity(t *testing.T) {
	s := testSession(t)
	u := mustSaveUser(t, s, "alice")

	if u.ID == "" {
		t.Fatalf("save must assign a surrogate id")
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Fatalf("save must stamp created/updated: %+v", u)
	}

	id := u.ID
	created := u.CreatedAt
	if err := s.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if u.ID != id {
		t.Fatalf("id must be stable across saves: %q != %q", u.ID, id)
	}
	if u.CreatedAt != created {
		t.Fatalf("created_at must not change on update")
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	lockout := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u, _ := entity.NewUser("alice")
	u.Email = "Alice@Example.com"
	u.EmailConfirmed = true
	u.PasswordHash = "opaque-hash"
	u.SecurityStamp = "stamp-1"
	u.PhoneNumber = "+15550100"
	u.PhoneNumberConfirmed = true
	u.TwoFactorEnabled = true
	u.LockoutEndUTC = &lockout
	u.LockoutEnabled = true
	u.AccessFailedCount = 2
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil {
		t.Fatalf("GetUser returned nil for a saved user")
	}
	if got.UserName != "alice" || got.Email != "Alice@Example.com" ||
		!got.EmailConfirmed || got.PasswordHash != "opaque-hash" ||
		got.SecurityStamp != "stamp-1" || got.PhoneNumber != "+15550100" ||
		!got.PhoneNumberConfirmed || !got.TwoFactorEnabled ||
		!got.LockoutEnabled || got.AccessFailedCount != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.LockoutEndUTC == nil || !got.LockoutEndUTC.Equal(lockout) {
		t.Fatalf("lockout end mismatch: %v", got.LockoutEndUTC)
	}
	if got.Roles == nil || got.Logins == nil || got.Claims == nil {
		t.Fatalf("loaded sets must be non-nil")
	}
}

func TestFindUserByNameIsCaseInsensitive(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()
	mustSaveUser(t, s, "ALICE")

	got, err := s.FindUserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("FindUserByName: %v", err)
	}
	if got == nil {
		t.Fatalf("lookup must match regardless of case")
	}
	if got.UserName != "ALICE" {
		t.Fatalf("stored casing must be preserved, got %q", got.UserName)
	}

	missing, err := s.FindUserByName(ctx, "bob")
	if err != nil {
		t.Fatalf("FindUserByName(bob): %v", err)
	}
	if missing != nil {
		t.Fatalf("absent user must yield nil, got %+v", missing)
	}
}

func TestFindUserByEmailIsCaseInsensitive(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	u, _ := entity.NewUser("alice")
	u.Email = "Alice@Example.com"
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := s.FindUserByEmail(ctx, "alice@example.COM")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("lookup must match regardless of case, got %+v", got)
	}
}

func TestFindUserByLogin(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	u := mustSaveUser(t, s, "alice")
	login, _ := entity.NewLogin("google", "key-1")
	u.AddLogin(login)
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := s.FindUserByLogin(ctx, login)
	if err != nil {
		t.Fatalf("FindUserByLogin: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("login owner not found, got %+v", got)
	}

	other, _ := entity.NewLogin("google", "key-2")
	missing, err := s.FindUserByLogin(ctx, other)
	if err != nil {
		t.Fatalf("FindUserByLogin(miss): %v", err)
	}
	if missing != nil {
		t.Fatalf("unowned login must yield nil")
	}
}

func TestSaveUserReconcilesSets(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	admin := mustSaveRole(t, s, "admin")
	u := mustSaveUser(t, s, "alice")
	u.AddRole(admin)
	login, _ := entity.NewLogin("google", "key-1")
	u.AddLogin(login)
	claim, _ := entity.NewClaim("dept", "engineering")
	u.AddClaim(claim)
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser with sets: %v", err)
	}

	got, _ := s.GetUser(ctx, u.ID)
	if len(got.Roles) != 1 || len(got.Logins) != 1 || len(got.Claims) != 1 {
		t.Fatalf("sets not persisted: %+v", got)
	}
	if got.Roles[0].ID != admin.ID {
		t.Fatalf("role link mismatch: %+v", got.Roles[0])
	}

	// Shrink every set and save again; tables must mirror the memory state.
	u.RemoveRole(admin)
	u.RemoveLogin(login)
	u.RemoveClaim(claim)
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser after removals: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if len(got.Roles)+len(got.Logins)+len(got.Claims) != 0 {
		t.Fatalf("sets must be empty after reconciliation: %+v", got)
	}
}

func TestSaveUserRejectsUnsavedRole(t *testing.T) {
	s := testSession(t)
	u := mustSaveUser(t, s, "alice")
	u.AddRole(&entity.Role{Name: "ghost"})

	if err := s.SaveUser(context.Background(), u); err == nil {
		t.Fatalf("saving a membership to an unsaved role must fail")
	}
}

func TestDeleteUserRemovesOwnedRows(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	admin := mustSaveRole(t, s, "admin")
	u := mustSaveUser(t, s, "alice")
	u.AddRole(admin)
	login, _ := entity.NewLogin("google", "key-1")
	u.AddLogin(login)
	claim, _ := entity.NewClaim("dept", "engineering")
	u.AddClaim(claim)
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	if err := s.DeleteUser(ctx, u); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if got, _ := s.GetUser(ctx, u.ID); got != nil {
		t.Fatalf("user must be gone")
	}
	owner, err := s.FindUserByLogin(ctx, login)
	if err != nil {
		t.Fatalf("FindUserByLogin: %v", err)
	}
	if owner != nil {
		t.Fatalf("login rows must be gone with the user")
	}
	// The role itself survives.
	if r, _ := s.GetRole(ctx, admin.ID); r == nil {
		t.Fatalf("roles must survive user deletion")
	}
}

func TestRoleRoundTrip(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	r := mustSaveRole(t, s, "Editor")
	if r.ID == "" {
		t.Fatalf("save must assign a surrogate id")
	}

	got, err := s.FindRoleByName(ctx, "editor")
	if err != nil {
		t.Fatalf("FindRoleByName: %v", err)
	}
	if got == nil || got.ID != r.ID {
		t.Fatalf("case-insensitive lookup failed: %+v", got)
	}
	if got.Name != "Editor" {
		t.Fatalf("stored casing must be preserved, got %q", got.Name)
	}

	r.Name = "Publisher"
	if err := s.SaveRole(ctx, r); err != nil {
		t.Fatalf("SaveRole update: %v", err)
	}
	got, _ = s.GetRole(ctx, r.ID)
	if got.Name != "Publisher" {
		t.Fatalf("rename not persisted: %+v", got)
	}
}

func TestDeleteRoleSeversMemberships(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	admin := mustSaveRole(t, s, "admin")
	u := mustSaveUser(t, s, "alice")
	u.AddRole(admin)
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	if err := s.DeleteRole(ctx, admin); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got == nil {
		t.Fatalf("user must survive role deletion")
	}
	if len(got.Roles) != 0 {
		t.Fatalf("membership links must be severed: %+v", got.Roles)
	}
}

func TestListOrdering(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	mustSaveUser(t, s, "Carol")
	mustSaveUser(t, s, "alice")
	mustSaveUser(t, s, "Bob")
	mustSaveRole(t, s, "Viewer")
	mustSaveRole(t, s, "admin")

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("want 3 users, got %d", len(users))
	}
	for i, want := range []string{"alice", "Bob", "Carol"} {
		if users[i].UserName != want {
			t.Fatalf("user %d: want %q, got %q", i, want, users[i].UserName)
		}
	}

	roles, err := s.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 2 || roles[0].Name != "admin" || roles[1].Name != "Viewer" {
		t.Fatalf("role ordering wrong: %+v", roles)
	}
}

func TestTransactionRollback(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	u := mustSaveUser(t, s, "alice")
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != nil {
		t.Fatalf("rolled back write must not be visible")
	}

	// Rollback without an open transaction is a no-op.
	if err := s.Rollback(); err != nil {
		t.Fatalf("idle Rollback: %v", err)
	}
}

func TestTransactionCommit(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	u := mustSaveUser(t, s, "alice")
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil {
		t.Fatalf("committed write must be visible")
	}
}
