package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMalformedHash は保存済みハッシュが bcrypt 形式として解釈できないことを表します。
var ErrMalformedHash = errors.New("malformed password hash")

// maxPasswordBytes は bcrypt が扱える入力長の上限です。
const maxPasswordBytes = 72

// dummyPassword は存在しないユーザーへの比較に使う値です。
const dummyPassword = "transit-portal-dummy-password"

// Verifier は bcrypt によるパスワードの検証とハッシュ化を行います。
type Verifier struct {
	cost      int
	dummyHash []byte
}

// NewVerifier は Verifier を作成します。cost は bcrypt.DefaultCost 未満に下げられません。
// Burn 用のダミーハッシュはここで作り、最初のリクエストに生成コストを負わせません。
func NewVerifier(cost int) *Verifier {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	v := &Verifier{cost: cost}
	if hash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost); err == nil {
		v.dummyHash = hash
	}
	return v
}

// Cost はハッシュ化に使うコストを返します。
func (v *Verifier) Cost() int {
	return v.cost
}

// Verify は平文パスワードが保存済みハッシュと一致するかを返します。
// 不一致は (false, nil)、ハッシュが壊れている場合は ErrMalformedHash を返します。
func (v *Verifier) Verify(plaintext, storedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// Hash はプロビジョニング用に平文パスワードをハッシュ化します。ソルトは毎回ランダムです。
func (v *Verifier) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("password is required")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Burn はダミーハッシュと比較して、ユーザーが存在する場合と同程度の時間を消費します。
// ダミーのコストは Hash と同じで、プロビジョニング済みのハッシュと揃います。
func (v *Verifier) Burn(plaintext string) {
	if v.dummyHash == nil {
		return
	}
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(plaintext))
}
