package auth

import "context"

// UserStore is the persistence collaborator for credential records.
// Implementations return ErrNotFound for unknown users and ErrUsernameTaken
// when Create hits an existing username.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	// Create assigns ID and CreatedAt when they are zero.
	Create(ctx context.Context, u User) (User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// UserLister is implemented by stores that can enumerate every account.
type UserLister interface {
	List(ctx context.Context) ([]User, error)
}
