package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fives.org/internal/auth"
	"fives.org/internal/notify"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

var userCols = []string{"id", "username", "name", "email", "password_hash", "role", "team", "zones", "is_active", "created_at"}

func TestFindByUsername(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("select .* from users where username = \\$1").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(7), "alice", "Alice", "alice@example.com", "$argon2id$...", "auditor", "line-1", []byte(`["assembly","paint"]`), true, created))

	u, err := s.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, auth.RoleAuditor, u.Role)
	assert.Equal(t, []string{"assembly", "paint"}, u.Zones)
	assert.Equal(t, created, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("select .* from users order by id").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(1), "admin", "Administrator", "admin@localhost", "h1", "admin", "", []byte(`[]`), true, created).
			AddRow(int64(2), "alice", "Alice", "alice@example.com", "h2", "auditor", "line-1", []byte(`["paint"]`), false, created))

	users, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, auth.RoleAuditor, users[1].Role)
	assert.Equal(t, []string{"paint"}, users[1].Zones)
	assert.False(t, users[1].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select .* from users where id = \\$1").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.Create(context.Background(), auth.User{Username: "alice", Role: auth.RoleViewer})
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestCreateUserReturnsRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("insert into users").
		WithArgs("bob", "Bob", "bob@example.com", "hash", "viewer", "", []byte(`[]`), true).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(3), "bob", "Bob", "bob@example.com", "hash", "viewer", "", []byte(`[]`), true, time.Now()))

	u, err := s.Create(context.Background(), auth.User{
		Username: "bob", Name: "Bob", Email: "bob@example.com", PasswordHash: "hash", Role: auth.RoleViewer, Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.ID)
	assert.Equal(t, []string{}, u.Zones)
}

func TestUpdatePasswordNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("update users set password_hash").
		WithArgs("hash", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.UpdatePassword(context.Background(), 5, "hash"), auth.ErrNotFound)

	mock.ExpectExec("update users set is_active").
		WithArgs(false, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.SetActive(context.Background(), 5, false))
}

func TestActiveRules(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("from notification_rules").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_active", "trigger_conditions", "actions", "recipients"}).
			AddRow("r1", "Overdue", true, `{"events":["action_overdue"]}`, `{"email":true}`, []byte(`["admin"]`)))

	rules, err := s.ActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"admin"}, rules[0].Recipients)
	assert.Equal(t, `{"email":true}`, rules[0].Actions)
}

func TestPutRule(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("insert into notification_rules").
		WithArgs("r1", "Overdue", true, `{}`, `{}`, []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.PutRule(context.Background(), notify.Rule{ID: "r1", Name: "Overdue", Active: true, TriggerConditions: "{}", Actions: "{}"}))
}

func TestWorkItems(t *testing.T) {
	s, mock := newMockStore(t)
	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("from actions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "assigned_to", "due_date", "status"}).
			AddRow("a1", "Label shelves", "alice", due, "open").
			AddRow("a2", "Sweep", "bob", nil, "open"))
	mock.ExpectQuery("from audits").
		WillReturnRows(sqlmock.NewRows([]string{"id", "zone", "auditor", "status", "score", "completed_at"}).
			AddRow("u1", "assembly", "alice", "completed", 55.5, due))

	actions, err := s.OpenActions(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, due, actions[0].DueDate)
	assert.True(t, actions[1].DueDate.IsZero())

	audits, err := s.CompletedAudits(context.Background())
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, 55.5, audits[0].Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNilDB(t *testing.T) {
	s := &Store{}
	_, err := s.FindByID(context.Background(), 1)
	assert.ErrorIs(t, err, errNoDB)
	assert.ErrorIs(t, s.Ping(context.Background()), errNoDB)
}
