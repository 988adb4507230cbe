package auth

import (
	"context"
	"errors"
	"fmt"
)

// EnsureAdmin creates an active admin account named username if none exists.
// The password bypasses the registration policy so that development seeds
// such as admin/admin123 keep working. It reports whether an account was
// created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, errors.New("auth: bootstrap admin needs a username and password")
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("check bootstrap admin: %w", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, err
	}
	_, err = s.users.Create(ctx, User{
		Username:     username,
		Name:         "Administrator",
		Email:        username + "@localhost",
		PasswordHash: hash,
		Role:         RoleAdmin,
		Zones:        []string{},
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return false, nil
		}
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	return true, nil
}
