package auth

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/transit-portal/internal/storage"
	"github.com/yourusername/transit-portal/internal/users"
)

// PictureSource はプロフィール画像の取得元です。
type PictureSource interface {
	OpenImage(name string) (*storage.Object, error)
}

// Profile は GET /profile のハンドラーです。RequireLogin の後ろで使います。
// パスワードハッシュを含まない公開用の射影のみを返します。
func (m *Manager) Profile(c *gin.Context) {
	user, ok := m.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user.Profile())
}

// ProfilePicture は GET /profile/picture のハンドラーを返します。
func (m *Manager) ProfilePicture(pictures PictureSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := m.currentUser(c)
		if !ok {
			return
		}
		if user.ProfilePicture == "" {
			respondNotFound(c)
			return
		}

		obj, err := pictures.OpenImage(user.ProfilePicture)
		if err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist),
				errors.Is(err, storage.ErrInvalidName),
				errors.Is(err, storage.ErrUnsupportedType):
				m.logger.WithError(err).WithField("user_id", user.ID).Warn("profile picture unavailable")
				respondNotFound(c)
			default:
				m.logger.WithError(err).WithField("user_id", user.ID).Error("failed to open profile picture")
				respondInternalError(c)
			}
			return
		}
		defer obj.Close()

		c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.File, map[string]string{
			"Cache-Control":          "private, max-age=300",
			"X-Content-Type-Options": "nosniff",
		})
	}
}

// currentUser はセッションのユーザーをストアから取得します。
// 取得できなかった場合は応答を書き込んで false を返します。
func (m *Manager) currentUser(c *gin.Context) (*users.User, bool) {
	userID, ok := CurrentUserID(c)
	if !ok {
		respondNotFound(c)
		return nil, false
	}

	user, err := m.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			respondNotFound(c)
			return nil, false
		}
		m.logger.WithError(err).WithField("user_id", userID).Error("failed to load user")
		respondInternalError(c)
		return nil, false
	}
	return user, true
}
