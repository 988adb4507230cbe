package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind separates access from refresh tokens. It is checked explicitly
// after signature verification.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "fives"
)

// Claims are the identity fields carried by both token kinds.
type Claims struct {
	UserID   int64     `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Kind     TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is an access and a refresh token issued together.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// TokenService signs and verifies JWTs. Access and refresh tokens use
// different secrets so one leaked secret cannot forge the other kind.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// TokenConfig carries the signing material and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService builds a TokenService. Both secrets are required, must be
// at least MinSecretLength bytes and must differ. Zero TTLs fall back to
// 1h/7d.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if len(cfg.AccessSecret) < MinSecretLength || len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("auth: token secrets must be at least %d bytes", MinSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	s := &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	if s.issuer == "" {
		s.issuer = defaultIssuer
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessToken signs a short-lived access token for c.
func (s *TokenService) IssueAccessToken(c Claims) (string, time.Time, error) {
	return s.issue(c, KindAccess, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for c.
func (s *TokenService) IssueRefreshToken(c Claims) (string, time.Time, error) {
	return s.issue(c, KindRefresh, s.refreshSecret, s.refreshTTL)
}

// IssueTokenPair issues both kinds for the same identity.
func (s *TokenService) IssueTokenPair(c Claims) (TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(c)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(c)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccessToken validates an access token.
func (s *TokenService) VerifyAccessToken(token string) (Claims, error) {
	return s.verify(token, KindAccess, s.accessSecret)
}

// VerifyRefreshToken validates a refresh token.
func (s *TokenService) VerifyRefreshToken(token string) (Claims, error) {
	return s.verify(token, KindRefresh, s.refreshSecret)
}

func (s *TokenService) issue(c Claims, kind TokenKind, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if c.UserID <= 0 || c.Username == "" {
		return "", time.Time{}, errors.New("auth: token subject is required")
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:   c.UserID,
		Username: c.Username,
		Role:     c.Role,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   c.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

func (s *TokenService) verify(token string, kind TokenKind, secret []byte) (Claims, error) {
	if token == "" {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return Claims{}, ErrTokenWrongKind
	}
	if claims.UserID <= 0 || claims.Username == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}
