package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryEmailUniqueCaseInsensitive(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first := &User{Email: "Ada@Example.com", PasswordHash: "x", UserType: UserTypeAdmin, Status: StatusActive}
	if err := store.Users(ctx).Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &User{Email: "ada@example.COM", PasswordHash: "y", UserType: UserTypeAdmin, Status: StatusActive}
	if err := store.Users(ctx).Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	found, err := store.Users(ctx).FindByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("lookup returned wrong user: %s", found.ID)
	}
}

func TestMemoryConcurrentCreateSingleWinner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := &User{Email: "race@example.com", PasswordHash: "x", UserType: UserTypeIndividual, Status: StatusPendingVerification}
			errs[i] = store.Users(ctx).Create(ctx, u)
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one winner, got created=%d conflicts=%d", created, conflicts)
	}
}

func TestMemoryRoleUpsertKeepsExisting(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, err := store.Roles(ctx).Upsert(ctx, &Role{Name: "ops", Description: "original"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.Roles(ctx).Upsert(ctx, &Role{Name: "ops", Description: "changed"})
	if err != nil {
		t.Fatalf("replayed upsert: %v", err)
	}
	if second.ID != first.ID || second.Description != "original" {
		t.Fatalf("replay mutated the role: %+v", second)
	}
}

func TestMemoryAssignRequiresBothEnds(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	u := &User{Email: "a@example.com", PasswordHash: "x", UserType: UserTypeAdmin, Status: StatusActive}
	if err := store.Users(ctx).Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	role, err := store.Roles(ctx).Upsert(ctx, &Role{Name: "ops"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.Roles(ctx).Assign(ctx, Assignment{UserID: "ghost", RoleID: role.ID}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if err := store.Roles(ctx).Assign(ctx, Assignment{UserID: u.ID, RoleID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
	if err := store.Roles(ctx).Assign(ctx, Assignment{UserID: u.ID, RoleID: role.ID}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
}

func TestMemoryUpdateStatus(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	u := &User{Email: "s@example.com", PasswordHash: "x", UserType: UserTypeMerchant, Status: StatusPendingVerification}
	if err := store.Users(ctx).Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Users(ctx).UpdateStatus(ctx, u.ID, StatusActive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err := store.Users(ctx).Find(ctx, u.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("status not updated: %s", got.Status)
	}
	if err := store.Users(ctx).UpdateStatus(ctx, "ghost", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
