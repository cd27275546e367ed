package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// FlashCookieName はワンショットメッセージ用クッキーの名前です。
	FlashCookieName = "flash"

	sessionKeyToken = "token"
)

// SessionOptions は SessionManager の設定です。
type SessionOptions struct {
	CookieName  string
	MaxAge      time.Duration // 発行からの絶対有効期限
	IdleTimeout time.Duration // 最終アクセスからの猶予
	Secure      bool          // HTTPS 限定クッキーにするか
}

// SessionManager は署名付きクッキーとサーバー側レジストリでセッションを管理します。
// クッキーには不透明なトークンのみを載せ、ユーザーIDはレジストリ側に保持します。
type SessionManager struct {
	opts     SessionOptions
	registry Registry
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCookieStore は署名（と任意で暗号化）付きのクッキーストアを作成します。
func NewCookieStore(secret, encryptionKey []byte, opts SessionOptions) sessions.Store {
	keyPairs := [][]byte{secret}
	if len(encryptionKey) > 0 {
		keyPairs = append(keyPairs, encryptionKey)
	}
	store := cookie.NewStore(keyPairs...)
	store.Options(cookieOptions(opts, int(opts.MaxAge.Seconds())))
	return store
}

// NewSessionManager は SessionManager を作成します。
func NewSessionManager(registry Registry, opts SessionOptions, logger *logrus.Logger) *SessionManager {
	if opts.CookieName == "" {
		opts.CookieName = "user_id"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionManager{
		opts:     opts,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// CookieName はセッションクッキーの名前を返します。
func (m *SessionManager) CookieName() string {
	return m.opts.CookieName
}

// Middleware はセッションクッキーとフラッシュクッキーを扱うミドルウェアを返します。
func (m *SessionManager) Middleware(store sessions.Store) gin.HandlerFunc {
	return sessions.SessionsMany([]string{m.opts.CookieName, FlashCookieName}, store)
}

// Issue は userID に紐づく新しいセッションを発行し、クッキーを応答に付与します。
func (m *SessionManager) Issue(c *gin.Context, userID int64) error {
	ctx := c.Request.Context()
	session := sessions.DefaultMany(c, m.opts.CookieName)

	// 以前のトークンが残っていれば破棄する（セッション固定化対策）
	if old, ok := session.Get(sessionKeyToken).(string); ok && old != "" {
		if err := m.registry.Delete(ctx, old); err != nil {
			m.logger.WithError(err).Warn("failed to delete previous session")
		}
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now()
	record := Record{
		UserID:   userID,
		IssuedAt: now,
		LastSeen: now,
	}
	if err := m.registry.Save(ctx, token, record, m.opts.MaxAge); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	session.Clear()
	session.Set(sessionKeyToken, token)
	session.Options(cookieOptions(m.opts, int(m.opts.MaxAge.Seconds())))
	if err := session.Save(); err != nil {
		_ = m.registry.Delete(ctx, token)
		return fmt.Errorf("failed to write session cookie: %w", err)
	}
	return nil
}

// Resolve はリクエストのセッションクッキーを検証し、ユーザーIDを返します。
// 署名不正・未知のトークン・期限切れはいずれも未ログインとして扱います。
func (m *SessionManager) Resolve(c *gin.Context) (int64, bool) {
	token, ok := m.token(c)
	if !ok {
		return 0, false
	}

	ctx := c.Request.Context()
	record, err := m.registry.Get(ctx, token)
	if err != nil {
		m.logger.WithError(err).Error("failed to load session")
		return 0, false
	}
	if record == nil {
		return 0, false
	}

	now := m.now()
	if now.Sub(record.IssuedAt) > m.opts.MaxAge || now.Sub(record.LastSeen) > m.opts.IdleTimeout {
		m.discard(ctx, token)
		return 0, false
	}

	if err := m.registry.Touch(ctx, token, now); err != nil {
		m.logger.WithError(err).Warn("failed to refresh session activity")
	}
	return record.UserID, true
}

// Revoke はサーバー側のセッションを破棄し、クライアントにクッキーの削除を指示します。
// セッションが無い場合も成功します。
func (m *SessionManager) Revoke(c *gin.Context) error {
	if token, ok := m.token(c); ok {
		m.discard(c.Request.Context(), token)
	}

	session := sessions.DefaultMany(c, m.opts.CookieName)
	session.Clear()
	session.Options(cookieOptions(m.opts, -1))
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to clear session cookie: %w", err)
	}
	return nil
}

// AddFlash は次回表示時に一度だけ出すメッセージを設定します。
func (m *SessionManager) AddFlash(c *gin.Context, message string) error {
	flash := sessions.DefaultMany(c, FlashCookieName)
	flash.AddFlash(message)
	return flash.Save()
}

// ConsumeFlash はフラッシュメッセージを取り出し、クッキーから削除します。
func (m *SessionManager) ConsumeFlash(c *gin.Context) []string {
	flash := sessions.DefaultMany(c, FlashCookieName)
	values := flash.Flashes()
	if len(values) == 0 {
		return nil
	}
	if err := flash.Save(); err != nil {
		m.logger.WithError(err).Warn("failed to clear flash cookie")
	}
	messages := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages
}

func (m *SessionManager) token(c *gin.Context) (string, bool) {
	session := sessions.DefaultMany(c, m.opts.CookieName)
	token, ok := session.Get(sessionKeyToken).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func (m *SessionManager) discard(ctx context.Context, token string) {
	if err := m.registry.Delete(ctx, token); err != nil {
		m.logger.WithError(err).Warn("failed to delete session")
	}
}

func cookieOptions(opts SessionOptions, maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
