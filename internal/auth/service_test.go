package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paydesk.org/internal/rbac"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store    *rbac.Memory
	catalog  *rbac.Catalog
	registry *rbac.Registry
	engine   *rbac.AssignmentEngine
	svc      *Service
	clock    *testClock
}

func newTestEnv(t *testing.T, opts ...ServiceOption) *testEnv {
	t.Helper()
	store := rbac.NewMemory()
	catalog, err := rbac.NewCatalog(store)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	registry, err := rbac.NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	engine, err := rbac.NewAssignmentEngine(store, registry)
	if err != nil {
		t.Fatalf("NewAssignmentEngine: %v", err)
	}
	authz, err := rbac.NewAuthorizer(store, engine)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	clock := &testClock{now: time.Now()}
	base := []ServiceOption{
		WithTokenSecret("unit-test-secret"),
		WithClock(clock.Now),
	}
	svc, err := NewService(store, engine, authz, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &testEnv{store: store, catalog: catalog, registry: registry, engine: engine, svc: svc, clock: clock}
}

func (e *testEnv) register(t *testing.T, email string, userType rbac.UserType) PublicUser {
	t.Helper()
	user, err := e.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "correct-horse",
		FirstName: "Pat",
		LastName:  "Doe",
		UserType:  userType,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func (e *testEnv) activate(t *testing.T, userID string) {
	t.Helper()
	if err := e.store.Users(context.Background()).UpdateStatus(context.Background(), userID, rbac.StatusActive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
}

func TestRegisterStartsPendingWithoutRoles(t *testing.T) {
	env := newTestEnv(t)

	user := env.register(t, "new@example.com", rbac.UserTypeMerchant)
	if user.Status != rbac.StatusPendingVerification {
		t.Fatalf("unexpected status: %s", user.Status)
	}
	// No role named "merchant" is seeded, so registration succeeds with an
	// empty role set.
	if len(user.Roles) != 0 {
		t.Fatalf("expected no roles, got %v", user.Roles)
	}
}

func TestRegisterBindsSeededDefaultRole(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registry.Upsert(context.Background(), "merchant", ""); err != nil {
		t.Fatalf("seed role: %v", err)
	}

	user := env.register(t, "shop@example.com", rbac.UserTypeMerchant)
	if len(user.Roles) != 1 || user.Roles[0] != "merchant" {
		t.Fatalf("expected the merchant role, got %v", user.Roles)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dup@example.com", rbac.UserTypeIndividual)

	stored, err := env.store.Users(context.Background()).FindByEmail(context.Background(), "dup@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}

	_, err = env.svc.Register(context.Background(), RegisterInput{
		Email:     "DUP@example.com",
		Password:  "another-pass",
		FirstName: "Pat",
		LastName:  "Doe",
		UserType:  rbac.UserTypeIndividual,
	})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The losing attempt must not touch the stored credentials.
	after, err := env.store.Users(context.Background()).FindByEmail(context.Background(), "dup@example.com")
	if err != nil {
		t.Fatalf("FindByEmail after conflict: %v", err)
	}
	if after.PasswordHash != stored.PasswordHash {
		t.Fatalf("conflicting register mutated the stored hash")
	}
}

func TestRegisterMerchantWithOnlyDisplayNamedRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Administrative roles exist under display names only; the default
	// binding targets "merchant" and must silently miss.
	if err := (rbac.Bootstrap{Catalog: env.catalog, Registry: env.registry}).Run(ctx); err != nil {
		t.Fatalf("Bootstrap.Run: %v", err)
	}

	user := env.register(t, "store@example.com", rbac.UserTypeMerchant)
	if len(user.Roles) != 0 {
		t.Fatalf("expected zero roles, got %v", user.Roles)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []RegisterInput{
		{Email: "", Password: "p", UserType: rbac.UserTypeAdmin},
		{Email: "not-an-email", Password: "p", UserType: rbac.UserTypeAdmin},
		{Email: "a@b.c", Password: "", UserType: rbac.UserTypeAdmin},
		{Email: "a@b.c", Password: "p", UserType: rbac.UserType("ROBOT")},
	}
	for i, in := range cases {
		if _, err := env.svc.Register(context.Background(), in); !errors.Is(err, rbac.ErrInvalidArgument) {
			t.Fatalf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

type recordingProfiles struct {
	merchants   []string
	individuals []string
}

func (r *recordingProfiles) CreateMerchantProfile(ctx context.Context, userID string, in MerchantProfileInput) error {
	r.merchants = append(r.merchants, userID)
	return nil
}

func (r *recordingProfiles) CreateIndividualProfile(ctx context.Context, userID string, in IndividualProfileInput) error {
	r.individuals = append(r.individuals, userID)
	return nil
}

func TestRegisterCreatesTypeSpecificProfile(t *testing.T) {
	profiles := &recordingProfiles{}
	env := newTestEnv(t, WithProfiles(profiles))

	merchant := env.register(t, "m@example.com", rbac.UserTypeMerchant)
	individual := env.register(t, "i@example.com", rbac.UserTypeIndividual)
	env.register(t, "a@example.com", rbac.UserTypeAdmin)

	if len(profiles.merchants) != 1 || profiles.merchants[0] != merchant.ID {
		t.Fatalf("merchant profile not created: %v", profiles.merchants)
	}
	if len(profiles.individuals) != 1 || profiles.individuals[0] != individual.ID {
		t.Fatalf("individual profile not created: %v", profiles.individuals)
	}
}

func TestLoginRequiresActiveStatus(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "pending@example.com", rbac.UserTypeIndividual)

	_, err := env.svc.Login(context.Background(), "pending@example.com", "correct-horse")
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}

	env.activate(t, user.ID)
	session, err := env.svc.Login(context.Background(), "pending@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login after activation: %v", err)
	}
	if session.Token == "" {
		t.Fatalf("expected a session token")
	}
	if session.User.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestLoginDoesNotRevealAccountExistence(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "known@example.com", rbac.UserTypeIndividual)
	env.activate(t, user.ID)

	_, wrongPass := env.svc.Login(context.Background(), "known@example.com", "bad-password")
	_, unknown := env.svc.Login(context.Background(), "ghost@example.com", "bad-password")

	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPass, unknown)
	}
	if wrongPass.Error() != unknown.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", wrongPass, unknown)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "token@example.com", rbac.UserTypeAdmin)
	env.activate(t, user.ID)

	session, err := env.svc.Login(context.Background(), "token@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := env.svc.ValidateToken(session.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "token@example.com" || claims.UserType != string(rbac.UserTypeAdmin) {
		t.Fatalf("unexpected identity claims: %s %s", claims.Email, claims.UserType)
	}

	principal, err := env.svc.AuthenticateToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if principal.User == nil || principal.User.ID != user.ID {
		t.Fatalf("unexpected principal: %+v", principal.User)
	}
}

func TestTokenExpiry(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "exp@example.com", rbac.UserTypeAdmin)
	env.activate(t, user.ID)

	session, err := env.svc.Login(context.Background(), "exp@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.svc.ValidateToken(session.Token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	env.clock.Advance(16 * time.Minute)
	if _, err := env.svc.ValidateToken(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestValidateTokenRejectsForgery(t *testing.T) {
	env := newTestEnv(t)
	other := newTestEnv(t, WithTokenSecret("a-different-secret"))

	user := other.register(t, "forged@example.com", rbac.UserTypeAdmin)
	other.activate(t, user.ID)
	session, err := other.svc.Login(context.Background(), "forged@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := env.svc.ValidateToken(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
	if _, err := env.svc.ValidateToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, err := env.svc.ValidateToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty input, got %v", err)
	}
}

func TestAuthenticateTokenReflectsLiveGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "grants@example.com", rbac.UserTypeAdmin)
	env.activate(t, user.ID)

	session, err := env.svc.Login(ctx, "grants@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	principal, err := env.svc.AuthenticateToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if principal.Allows("payment", "read") {
		t.Fatalf("unexpected permission before any grant")
	}

	// Grant a role after the token was issued; the same token must see it.
	perm, err := env.catalog.Upsert(ctx, "", "payment", "read", "")
	if err != nil {
		t.Fatalf("Upsert permission: %v", err)
	}
	role, err := env.registry.Upsert(ctx, "viewer", "")
	if err != nil {
		t.Fatalf("Upsert role: %v", err)
	}
	if err := env.registry.Grant(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := env.engine.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	principal, err = env.svc.AuthenticateToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if !principal.Allows("payment", "read") {
		t.Fatalf("grant not visible through an existing token")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatalf("empty context must not carry a principal")
	}

	principal := rbac.NewPrincipal(&rbac.User{ID: "user-3"}, nil)
	ctx = ContextWithPrincipal(ctx, principal)
	ctx = ContextWithToken(ctx, "raw-token")

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-3" {
		t.Fatalf("unexpected user id: %q ok=%v", id, ok)
	}
	token, ok := TokenFromContext(ctx)
	if !ok || token != "raw-token" {
		t.Fatalf("unexpected token: %q ok=%v", token, ok)
	}
}
