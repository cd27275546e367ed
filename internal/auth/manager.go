// Package auth はログイン・ログアウト・セッション検証を提供します。
//
// 構成要素:
//   - Verifier: bcrypt によるパスワード検証
//   - SessionManager: 署名付きクッキー + サーバー側レジストリによるセッション管理
//   - Manager: 上記とユーザーストアを組み合わせた HTTP ハンドラー
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/transit-portal/internal/users"
)

// ユーザー向けフラッシュメッセージ
const (
	FlashLoginSuccess  = "Login successful!"
	FlashLogoutSuccess = "Logout successful!"
)

// ログイン試行の結果
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLocked  = "locked"
	OutcomeError   = "error"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5

	// recordTimeout は監査記録1件に許す時間です。
	recordTimeout = 2 * time.Second
)

// UserFinder はユーザーストアのうち認証で使う読み取り操作です。
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*users.User, error)
	FindByID(ctx context.Context, id int64) (*users.User, error)
}

// LoginAttempt は監査用に記録するログイン試行です。
type LoginAttempt struct {
	Username  string
	UserID    int64
	Outcome   string
	ClientIP  string
	UserAgent string
	At        time.Time
}

// LoginRecorder はログイン試行を記録します。
type LoginRecorder interface {
	RecordLogin(ctx context.Context, attempt LoginAttempt) error
}

// LoginObserver はログイン結果をメトリクスに反映します。
type LoginObserver interface {
	ObserveLogin(outcome string)
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Options は Manager の任意の依存です。
type Options struct {
	Recorder LoginRecorder
	Observer LoginObserver
	Logger   *logrus.Logger
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users    UserFinder
	verifier *Verifier
	sessions *SessionManager
	recorder LoginRecorder
	observer LoginObserver
	logger   *logrus.Logger
	now      func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(finder UserFinder, verifier *Verifier, sessionManager *SessionManager, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		users:    finder,
		verifier: verifier,
		sessions: sessionManager,
		recorder: opts.Recorder,
		observer: opts.Observer,
		logger:   logger,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

// Sessions は SessionManager を返します。
func (m *Manager) Sessions() *SessionManager {
	return m.sessions
}

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を指定してください",
		})
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	attempt := LoginAttempt{
		Username:  req.Username,
		ClientIP:  ip,
		UserAgent: c.Request.UserAgent(),
		At:        m.now(),
	}

	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		m.finishAttempt(ctx, attempt, OutcomeLocked)
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	user, err := m.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			// 存在しないユーザーでも同じだけ bcrypt を回し、応答時間で区別させない
			m.verifier.Burn(req.Password)
			m.rejectCredentials(c, attempt)
			return
		}
		m.logger.WithError(err).WithField("username", req.Username).Error("failed to look up user")
		m.finishAttempt(ctx, attempt, OutcomeError)
		respondInternalError(c)
		return
	}
	attempt.UserID = user.ID

	ok, err := m.verifier.Verify(req.Password, user.PasswordHash)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", user.ID).Error("stored password hash is corrupted")
		m.finishAttempt(ctx, attempt, OutcomeError)
		respondInternalError(c)
		return
	}
	if !ok {
		m.rejectCredentials(c, attempt)
		return
	}

	m.resetAttempts(ip)

	if err := m.sessions.Issue(c, user.ID); err != nil {
		m.logger.WithError(err).WithField("user_id", user.ID).Error("failed to issue session")
		m.finishAttempt(ctx, attempt, OutcomeError)
		respondInternalError(c)
		return
	}
	if err := m.sessions.AddFlash(c, FlashLoginSuccess); err != nil {
		m.logger.WithError(err).Warn("failed to set flash message")
	}

	m.finishAttempt(ctx, attempt, OutcomeSuccess)
	c.Redirect(http.StatusFound, "/profile")
}

// Logout は GET /logout のハンドラーです。何度呼んでも同じ結果になります。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.sessions.Revoke(c); err != nil {
		m.logger.WithError(err).Warn("failed to revoke session")
	}
	if err := m.sessions.AddFlash(c, FlashLogoutSuccess); err != nil {
		m.logger.WithError(err).Warn("failed to set flash message")
	}
	c.Redirect(http.StatusFound, "/")
}

// rejectCredentials は資格情報エラーを返します。
// ユーザーが存在しない場合とパスワード不一致の場合で応答を変えてはいけません。
func (m *Manager) rejectCredentials(c *gin.Context, attempt LoginAttempt) {
	remaining := m.recordFailure(attempt.ClientIP)
	m.finishAttempt(c.Request.Context(), attempt, OutcomeFailure)
	c.JSON(http.StatusUnauthorized, gin.H{
		"code":              "INVALID_CREDENTIALS",
		"message":           "ユーザー名またはパスワードが正しくありません",
		"remainingAttempts": remaining,
	})
}

func (m *Manager) finishAttempt(ctx context.Context, attempt LoginAttempt, outcome string) {
	attempt.Outcome = outcome
	if m.observer != nil {
		m.observer.ObserveLogin(outcome)
	}

	entry := m.logger.WithFields(logrus.Fields{
		"username":  attempt.Username,
		"client_ip": attempt.ClientIP,
		"outcome":   outcome,
	})
	if outcome == OutcomeSuccess {
		entry.Info("login")
	} else {
		entry.Warn("login rejected")
	}

	if m.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := m.recorder.RecordLogin(recordCtx, attempt); err != nil {
		m.logger.WithError(err).Warn("failed to record login attempt")
	}
}

func respondInternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました",
	})
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.pruneAttempts(now)

	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// pruneAttempts は集計期間もロックも過ぎたIPを削除します。m.lock を保持して呼びます。
func (m *Manager) pruneAttempts(now time.Time) {
	for ip, state := range m.attempts {
		if now.Sub(state.firstAttempt) > loginWindow && now.After(state.lockedUntil) {
			delete(m.attempts, ip)
		}
	}
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}
