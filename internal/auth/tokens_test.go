package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-access-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
)

func newTestTokens(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "fives-test",
	}, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceSecrets(t *testing.T) {
	_, err := NewTokenService(TokenConfig{AccessSecret: testAccessSecret})
	assert.Error(t, err)

	_, err = NewTokenService(TokenConfig{AccessSecret: "short", RefreshSecret: testRefreshSecret})
	assert.Error(t, err)

	_, err = NewTokenService(TokenConfig{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret})
	assert.Error(t, err)
}

func TestTokenPairRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, WithClock(func() time.Time { return now }))

	pair, err := svc.IssueTokenPair(Claims{UserID: 7, Username: "alice", Role: RoleAuditor})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), pair.AccessExpiresAt)
	assert.Equal(t, now.Add(7*24*time.Hour), pair.RefreshExpiresAt)

	access, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), access.UserID)
	assert.Equal(t, "alice", access.Username)
	assert.Equal(t, RoleAuditor, access.Role)
	assert.Equal(t, KindAccess, access.Kind)
	assert.NotEmpty(t, access.ID)

	refresh, err := svc.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, refresh.Kind)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	svc := newTestTokens(t)
	pair, err := svc.IssueTokenPair(Claims{UserID: 1, Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)

	// Different secrets: the refresh token fails signature checks as an
	// access token and vice versa.
	_, err = svc.VerifyAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.VerifyRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenWrongKindWithSharedSecret(t *testing.T) {
	svc := newTestTokens(t)
	// A token signed with the access secret but labelled refresh.
	claims := Claims{
		UserID:   1,
		Username: "admin",
		Role:     RoleAdmin,
		Kind:     KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fives-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrTokenWrongKind)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, WithClock(func() time.Time { return now }))
	token, _, err := svc.IssueAccessToken(Claims{UserID: 1, Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenInvalid(t *testing.T) {
	svc := newTestTokens(t)
	token, _, err := svc.IssueAccessToken(Claims{UserID: 1, Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	for _, raw := range []string{"", "garbage", "a.b.c", tampered} {
		_, err := svc.VerifyAccessToken(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid, raw)
	}
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestTokens(t)
	claims := Claims{
		UserID:   1,
		Username: "admin",
		Kind:     KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fives-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssueRequiresSubject(t *testing.T) {
	svc := newTestTokens(t)
	_, _, err := svc.IssueAccessToken(Claims{Username: "nobody"})
	assert.Error(t, err)
}
