// Package users はユーザー資格情報ストアへの読み取りアクセスを提供します。
package users

import "errors"

// ErrNotFound は該当ユーザーが存在しないことを表します。
var ErrNotFound = errors.New("user not found")

// User は users テーブルの1行を表します。
// PasswordHash を含むため、クライアントへ直接シリアライズしてはいけません。
type User struct {
	ID             int64
	Username       string
	PasswordHash   string
	ProfilePicture string
	Hours          int64
}

// Profile はクライアントへ返す公開用の射影です。
type Profile struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	Hours          int64  `json:"hours"`
}

// Profile は公開用の射影を返します。
func (u *User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		Hours:          u.Hours,
	}
}
