package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fives.org/internal/auth"
	"fives.org/internal/store/memory"
)

type fixture struct {
	svc   *auth.Service
	users *memory.UserStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret-access-secret-0123456789",
		RefreshSecret: "refresh-secret-refresh-secret-0123456789",
	})
	require.NoError(t, err)
	users := memory.NewUserStore()
	svc, err := auth.NewService(users, tokens, auth.NewPasswordHasher(auth.HashParams{MemoryKiB: 1024, Iterations: 1}))
	require.NoError(t, err)
	created, err := svc.EnsureAdmin(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.True(t, created)
	return fixture{svc: svc, users: users}
}

func TestLoginIssuesPairForBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Equal(t, "admin", res.User.Username)
	assert.Equal(t, auth.RoleAdmin, res.User.Role)
	assert.Empty(t, res.User.PasswordHash)

	user, err := f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, auth.RegisterInput{
		Username: "dormant", Password: "Secret123", Name: "Dormant", Email: "dormant@example.com",
	})
	require.NoError(t, err)
	u, err := f.users.FindByUsername(ctx, "dormant")
	require.NoError(t, err)
	require.NoError(t, f.users.SetActive(ctx, u.ID, false))

	attempts := [][2]string{
		{"ghost", "Secret123"},
		{"admin", "wrong-password"},
		{"dormant", "Secret123"},
		{"Admin", "admin123"},
		{"", ""},
	}
	for _, a := range attempts {
		_, err := f.svc.Login(ctx, a[0], a[1])
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials, a[0])
	}
}

func TestRegisterDefaultsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := auth.RegisterInput{
		Username: "bob",
		Password: "Secret123",
		Name:     "Bob",
		Email:    "bob@example.com",
		Zones:    []string{"warehouse"},
	}

	user, err := f.svc.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleViewer, user.Role)
	assert.True(t, user.Active)
	assert.Empty(t, user.PasswordHash)
	assert.NotZero(t, user.ID)
	assert.Equal(t, []string{"warehouse"}, user.Zones)

	_, err = f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	in.Username = "carol"
	in.Password = "weak"
	_, err = f.svc.Register(ctx, in)
	var verr *auth.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestRefreshRechecksAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	// The old refresh token keeps working; there is no rotation.
	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	require.NoError(t, f.users.SetActive(ctx, res.User.ID, false))
	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrAccountInactive)
}

func TestDeactivationInvalidatesAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.NoError(t, f.users.SetActive(ctx, res.User.ID, false))

	_, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrAccountInactive)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	id := res.User.ID

	err = f.svc.ChangePassword(ctx, id, "not-it", "NewSecret123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, id, "admin123", "weak")
	var verr *auth.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "newPassword", verr.Fields[0].Field)

	require.NoError(t, f.svc.ChangePassword(ctx, id, "admin123", "NewSecret123"))

	_, err = f.svc.Login(ctx, "admin", "admin123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "admin", "NewSecret123")
	assert.NoError(t, err)
}

func TestProfileReadsLiveRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	profile, err := f.svc.Profile(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", profile.Username)
	assert.Empty(t, profile.PasswordHash)
	assert.WithinDuration(t, time.Now(), profile.CreatedAt, time.Minute)

	_, err = f.svc.Profile(ctx, 9999)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

// findOnlyStore hides the List method of the wrapped store.
type findOnlyStore struct{ auth.UserStore }

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, auth.RegisterInput{
		Username: "walker", Password: "Secret123", Name: "Walker", Email: "walker@example.com",
	})
	require.NoError(t, err)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, "walker", users[1].Username)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret-access-secret-0123456789",
		RefreshSecret: "refresh-secret-refresh-secret-0123456789",
	})
	require.NoError(t, err)
	svc, err := auth.NewService(findOnlyStore{f.users}, tokens, nil)
	require.NoError(t, err)
	_, err = svc.ListUsers(ctx)
	assert.ErrorIs(t, err, auth.ErrListUnsupported)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.EnsureAdmin(context.Background(), "admin", "other")
	require.NoError(t, err)
	assert.False(t, created)
}
