package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Tokens TokenPair
	User   User
}

// Service implements the credential flows: login, registration, refresh,
// profile lookup and password change.
type Service struct {
	users  UserStore
	tokens *TokenService
	hasher *PasswordHasher
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService wires the auth flows to their collaborators.
func NewService(users UserStore, tokens *TokenService, hasher *PasswordHasher) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultHashParams())
	}
	return &Service{users: users, tokens: tokens, hasher: hasher, now: time.Now}, nil
}

// Tokens exposes the token service used by the middleware.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Users exposes the user store used by the middleware.
func (s *Service) Users() UserStore { return s.users }

// Login checks credentials and issues a token pair. Unknown usernames,
// inactive accounts and wrong passwords all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return LoginResult{}, fmt.Errorf("load user: %w", err)
		}
		s.burnHash(password)
		return LoginResult{}, ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify password for %s: %w", user.Username, err)
	}
	if !ok || !user.Active {
		return LoginResult{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.IssueTokenPair(claimsFor(user))
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Tokens: pair, User: user.Sanitized()}, nil
}

// burnHash spends roughly the time of a real verification so that unknown
// usernames are not distinguishable by latency.
func (s *Service) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("dummy-password-for-timing")
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}

// Register validates input and creates an account. The new account gets the
// viewer role unless another role is requested. No tokens are issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("check username: %w", err)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	role := RoleViewer
	if in.Role != "" {
		role, _ = ParseRole(in.Role)
	}
	zones := make([]string, 0, len(in.Zones))
	for _, z := range in.Zones {
		zones = append(zones, strings.TrimSpace(z))
	}
	created, err := s.users.Create(ctx, User{
		Username:     in.Username,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         role,
		Team:         strings.TrimSpace(in.Team),
		Zones:        zones,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created.Sanitized(), nil
}

// Refresh exchanges a refresh token for a new pair. The account is
// re-checked; the presented token stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.liveUser(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	return s.tokens.IssueTokenPair(claimsFor(user))
}

// Profile re-reads the user record.
func (s *Service) Profile(ctx context.Context, userID int64) (User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	return user.Sanitized(), nil
}

// ListUsers returns every account without password hashes, ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	lister, ok := s.users.(UserLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	users, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Sanitized())
	}
	return out, nil
}

// ChangePassword replaces the stored hash after checking the current password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	var v ValidationError
	if current == "" {
		v.add("currentPassword", "Current password is required")
	}
	checkPassword(&v, "newPassword", next)
	if err := v.orNil(); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(user.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("verify password for %s: %w", user.Username, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// Authenticate resolves an access token to the live account. Deactivated or
// deleted accounts are rejected even while their tokens are unexpired.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return User{}, err
	}
	return s.liveUser(ctx, claims.UserID)
}

func (s *Service) liveUser(ctx context.Context, id int64) (User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrAccountInactive
		}
		return User{}, fmt.Errorf("load user %d: %w", id, err)
	}
	if !user.Active {
		return User{}, ErrAccountInactive
	}
	return user, nil
}

func claimsFor(u User) Claims {
	return Claims{UserID: u.ID, Username: u.Username, Role: u.Role}
}
