// Package main はユーザーを登録するプロビジョニング用 CLI です。
//
// 使い方:
//
//	useradd -username alice [-picture alice.png] [-hours 0] [-password-stdin]
//
// パスワードは端末からエコーなしで読み込みます。-password-stdin を付けると標準入力の1行目を使います。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/yourusername/transit-portal/internal/auth"
	"github.com/yourusername/transit-portal/internal/config"
	"github.com/yourusername/transit-portal/internal/users"
)

// readPassword は term.ReadPassword の差し替え口です（テスト用）。
var readPassword = term.ReadPassword

type options struct {
	username      string
	picture       string
	hours         int64
	passwordStdin bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	password, err := obtainPassword(opts, os.Stdin, os.Stderr)
	if err != nil {
		logrus.Fatalf("Failed to read password: %v", err)
	}

	db, err := users.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := provision(ctx, users.NewStore(db, cfg.DatabaseDriver), auth.NewVerifier(cfg.BcryptCost), opts, password)
	if err != nil {
		logrus.Fatalf("Failed to create user: %v", err)
	}
	fmt.Printf("created user %q with id %d\n", user.Username, user.ID)
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.StringVar(&opts.username, "username", "", "login name (required)")
	fs.StringVar(&opts.picture, "picture", "", "profile picture file name under PROFILE_PICTURE_DIR")
	fs.Int64Var(&opts.hours, "hours", 0, "initial hours counter")
	fs.BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.username = strings.TrimSpace(opts.username)
	if opts.username == "" {
		return opts, errors.New("-username is required")
	}
	if opts.hours < 0 {
		return opts, errors.New("-hours must not be negative")
	}
	return opts, nil
}

// obtainPassword はパスワードを読み込みます。端末からの場合は確認のため2回入力させます。
func obtainPassword(opts options, stdin *os.File, prompt io.Writer) (string, error) {
	if opts.passwordStdin {
		return readLine(stdin)
	}

	fd := int(stdin.Fd())
	fmt.Fprint(prompt, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Confirm password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// provision はテーブルを用意し、ハッシュ化したパスワードでユーザーを登録します。
func provision(ctx context.Context, store *users.Store, verifier *auth.Verifier, opts options, password string) (*users.User, error) {
	hash, err := verifier.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	user := &users.User{
		Username:       opts.username,
		PasswordHash:   hash,
		ProfilePicture: opts.picture,
		Hours:          opts.hours,
	}
	if err := store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
