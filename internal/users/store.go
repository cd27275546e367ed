package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL ドライバー ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite ドライバー ("sqlite3")
)

const userColumns = "id, username, password_hash, profile_picture, hours"

// Store は users テーブルへのアクセスを担います。
// HTTP 側からは読み取り専用で使用し、Create/Migrate はプロビジョニング用です。
type Store struct {
	db     *sql.DB
	driver string
}

// Open は接続プールを作成し、疎通確認を行います。
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// NewStore は Store を作成します。driver はプレースホルダーの方言を決めるために使います。
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{
		db:     db,
		driver: driver,
	}
}

// FindByUsername はユーザー名でユーザーを検索します。存在しない場合は ErrNotFound を返します。
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE username = ?")
	return s.queryOne(ctx, query, username)
}

// FindByID はIDでユーザーを検索します。存在しない場合は ErrNotFound を返します。
func (s *Store) FindByID(ctx context.Context, id int64) (*User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	return s.queryOne(ctx, query, id)
}

// Create はユーザーを登録し、採番された ID を user に設定します。
func (s *Store) Create(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if strings.TrimSpace(user.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("password hash is required")
	}

	query := s.rebind("INSERT INTO users (username, password_hash, profile_picture, hours) VALUES (?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRowContext(ctx, query, user.Username, user.PasswordHash, user.ProfilePicture, user.Hours).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to insert user %q: %w", user.Username, err)
	}
	return nil
}

// Migrate は users テーブルが存在しなければ作成します。
func (s *Store) Migrate(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "pgx" {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	ddl := `CREATE TABLE IF NOT EXISTS users (
		` + idColumn + `,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		profile_picture TEXT NOT NULL DEFAULT '',
		hours INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func (s *Store) queryOne(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.ProfilePicture,
		&user.Hours,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// rebind は ? プレースホルダーをドライバーの方言に合わせて書き換えます。
func (s *Store) rebind(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
