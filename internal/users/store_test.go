package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore はインメモリ SQLite 上に Store を用意します。
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// :memory: は接続ごとに別DBになるため1本に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db, "sqlite3")
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	alice := &User{
		Username:       "alice",
		PasswordHash:   "$2a$10$placeholder",
		ProfilePicture: "alice.png",
		Hours:          12,
	}
	require.NoError(t, store.Create(ctx, alice))
	assert.Equal(t, int64(1), alice.ID)

	byName, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, byName)

	byID, err := store.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, byID)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Create(ctx, &User{Username: "bob", PasswordHash: "x"}))
	err := store.Create(ctx, &User{Username: "bob", PasswordHash: "y"})
	assert.Error(t, err)
}

func TestStoreCreateValidation(t *testing.T) {
	store := setupTestStore(t)

	assert.Error(t, store.Create(context.Background(), nil))
	assert.Error(t, store.Create(context.Background(), &User{Username: " ", PasswordHash: "x"}))
	assert.Error(t, store.Create(context.Background(), &User{Username: "carol"}))
}

func TestStoreQueryErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	backendErr := errors.New("connection refused")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password_hash, profile_picture, hours FROM users WHERE username = ?")).
		WithArgs("alice").
		WillReturnError(backendErr)

	store := NewStore(db, "sqlite3")
	_, err = store.FindByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorePgxPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "profile_picture", "hours"}).
		AddRow(7, "dave", "hash", "", 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password_hash, profile_picture, hours FROM users WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	store := NewStore(db, "pgx")
	user, err := store.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "dave", user.Username)
	assert.Equal(t, int64(3), user.Hours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileOmitsPasswordHash(t *testing.T) {
	user := &User{ID: 1, Username: "alice", PasswordHash: "secret-hash", ProfilePicture: "a.png", Hours: 5}
	profile := user.Profile()

	assert.Equal(t, Profile{ID: 1, Username: "alice", ProfilePicture: "a.png", Hours: 5}, profile)
}
