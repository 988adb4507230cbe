package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fives.org/internal/auth"
)

var (
	_ auth.UserStore  = (*Store)(nil)
	_ auth.UserLister = (*Store)(nil)
)

const userColumns = `id, username, name, email, password_hash, role, team, zones, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u        auth.User
		role     string
		rawZones []byte
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Team, &rawZones, &u.Active, &u.CreatedAt); err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	u.Zones = []string{}
	if len(rawZones) > 0 {
		if err := json.Unmarshal(rawZones, &u.Zones); err != nil {
			return auth.User{}, fmt.Errorf("decode zones: %w", err)
		}
	}
	return u, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) FindByUsername(ctx context.Context, username string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

// List returns every user ordered by id.
func (s *Store) List(ctx context.Context) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	zones := u.Zones
	if zones == nil {
		zones = []string{}
	}
	rawZones, err := json.Marshal(zones)
	if err != nil {
		return auth.User{}, fmt.Errorf("marshal zones: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (username, name, email, password_hash, role, team, zones, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+userColumns,
		u.Username, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Team, rawZones, u.Active)
	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, auth.ErrUsernameTaken
		}
		return auth.User{}, err
	}
	return created, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return s.updateUser(ctx, `update users set password_hash = $1 where id = $2`, passwordHash, id)
}

// SetActive flips the account's active flag.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	return s.updateUser(ctx, `update users set is_active = $1 where id = $2`, active, id)
}

func (s *Store) updateUser(ctx context.Context, query string, args ...any) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
