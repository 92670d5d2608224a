package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paydesk.org/internal/obs"
	"paydesk.org/internal/rbac"
)

const defaultAccessTTL = 15 * time.Minute

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike, so the response never leaks account existence.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountNotActive is returned when credentials match but the account
	// status forbids login.
	ErrAccountNotActive = errors.New("auth: account not active")
)

// MerchantProfileInput carries the merchant-specific registration fields.
type MerchantProfileInput struct {
	BusinessName string `json:"business_name"`
	TaxID        string `json:"tax_id,omitempty"`
}

// IndividualProfileInput carries the individual-specific registration fields.
type IndividualProfileInput struct {
	DateOfBirth string `json:"date_of_birth,omitempty"`
	NationalID  string `json:"national_id,omitempty"`
}

// ProfileStore is the collaborator that persists type-specific profile
// records created alongside registration.
type ProfileStore interface {
	CreateMerchantProfile(ctx context.Context, userID string, in MerchantProfileInput) error
	CreateIndividualProfile(ctx context.Context, userID string, in IndividualProfileInput) error
}

// RegisterInput is the already-validated registration payload.
type RegisterInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	UserType   rbac.UserType
	Merchant   *MerchantProfileInput
	Individual *IndividualProfileInput
}

// PublicUser is the projection returned to callers. It never carries the
// password hash.
type PublicUser struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Phone         string          `json:"phone,omitempty"`
	UserType      rbac.UserType   `json:"user_type"`
	Status        rbac.UserStatus `json:"status"`
	EmailVerified bool            `json:"email_verified"`
	LastLoginAt   *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Roles         []string        `json:"roles"`
}

// Session is the login result: a stateless bearer token plus the public user
// projection with resolved roles.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      PublicUser `json:"user"`
}

// Service implements registration, login and token validation on top of the
// RBAC store and assignment engine.
type Service struct {
	store    rbac.Store
	engine   *rbac.AssignmentEngine
	authz    *rbac.Authorizer
	profiles ProfileStore

	tokenSecret []byte
	issuer      string
	accessTTL   time.Duration
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret enables HS256 token issuance and verification.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: token secret is empty")
		}
		s.tokenSecret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithProfiles wires the type-specific profile collaborator.
func WithProfiles(profiles ProfileStore) ServiceOption {
	return func(s *Service) error {
		s.profiles = profiles
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store rbac.Store, engine *rbac.AssignmentEngine, authz *rbac.Authorizer, opts ...ServiceOption) (*Service, error) {
	if store == nil || engine == nil || authz == nil {
		return nil, errors.New("auth: store, engine and authorizer are required")
	}
	svc := &Service{
		store:     store,
		engine:    engine,
		authz:     authz,
		issuer:    "paydesk",
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register creates a user in PENDING_VERIFICATION, triggers the type-specific
// profile record and binds the default role. A duplicate email fails with
// ErrConflict; a missing default role does not fail registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (PublicUser, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return PublicUser{}, fmt.Errorf("%w: valid email is required", rbac.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Password) == "" {
		return PublicUser{}, fmt.Errorf("%w: password is required", rbac.ErrInvalidArgument)
	}
	if !in.UserType.Valid() {
		return PublicUser{}, fmt.Errorf("%w: unsupported user type %q", rbac.ErrInvalidArgument, in.UserType)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return PublicUser{}, err
	}

	user := &rbac.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		UserType:     in.UserType,
		Status:       rbac.StatusPendingVerification,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return PublicUser{}, err
	}

	if err := s.createProfile(ctx, user, in); err != nil {
		return PublicUser{}, err
	}
	if err := s.engine.AssignDefaultRole(ctx, user.ID, user.UserType); err != nil {
		return PublicUser{}, err
	}

	grants, err := s.engine.RolesForUser(ctx, user.ID)
	if err != nil {
		return PublicUser{}, err
	}
	return publicUser(user, grants), nil
}

func (s *Service) createProfile(ctx context.Context, user *rbac.User, in RegisterInput) error {
	if s.profiles == nil {
		return nil
	}
	switch user.UserType {
	case rbac.UserTypeMerchant:
		profile := MerchantProfileInput{}
		if in.Merchant != nil {
			profile = *in.Merchant
		}
		return s.profiles.CreateMerchantProfile(ctx, user.ID, profile)
	case rbac.UserTypeIndividual:
		profile := IndividualProfileInput{}
		if in.Individual != nil {
			profile = *in.Individual
		}
		return s.profiles.CreateIndividualProfile(ctx, user.ID, profile)
	case rbac.UserTypeAdmin:
		return nil
	default:
		return fmt.Errorf("%w: unsupported user type %q", rbac.ErrInvalidArgument, user.UserType)
	}
}

// Login verifies credentials and issues a signed session token. Unknown email
// and wrong password produce the same error; a non-ACTIVE account is rejected
// before the password check.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if len(s.tokenSecret) == 0 {
		return Session{}, errors.New("auth: token secret is not configured")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if user.Status != rbac.StatusActive {
		return Session{}, ErrAccountNotActive
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	// Fire-and-forget: the timestamp is not security relevant, so a failed
	// write must not block token issuance.
	if err := s.store.Users(ctx).RecordLogin(ctx, user.ID, now); err != nil {
		obs.Log(map[string]any{
			"level":   "warn",
			"msg":     "last-login write failed",
			"user_id": user.ID,
			"error":   err.Error(),
		})
	} else {
		user.LastLoginAt = &now
	}

	token, expiresAt, err := s.signToken(user, now)
	if err != nil {
		return Session{}, err
	}
	grants, err := s.engine.RolesForUser(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      publicUser(user, grants),
	}, nil
}

// AuthenticateToken validates a bearer token and resolves the principal from
// the live role bindings. Permissions granted or revoked after issuance are
// reflected immediately.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (rbac.Principal, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return rbac.Principal{}, ErrInvalidToken
	}
	principal, err := s.authz.PrincipalFor(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return rbac.Principal{}, ErrInvalidToken
		}
		return rbac.Principal{}, err
	}
	return principal, nil
}

// SupportsTokens reports whether bearer token verification is enabled.
func (s *Service) SupportsTokens() bool {
	return len(s.tokenSecret) > 0
}

func publicUser(user *rbac.User, grants []rbac.RoleGrant) PublicUser {
	roles := make([]string, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, g.Role.Name)
	}
	return PublicUser{
		ID:            user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Phone:         user.Phone,
		UserType:      user.UserType,
		Status:        user.Status,
		EmailVerified: user.EmailVerified,
		LastLoginAt:   user.LastLoginAt,
		CreatedAt:     user.CreatedAt,
		Roles:         roles,
	}
}
