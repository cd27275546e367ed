package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/transit-portal/internal/audit"
	"github.com/yourusername/transit-portal/internal/auth"
)

// auditRecorder は auth.LoginRecorder を Asynq キューへの投入に変換します。
type auditRecorder struct {
	manager *audit.Manager
}

func (r *auditRecorder) RecordLogin(ctx context.Context, attempt auth.LoginAttempt) error {
	_, err := r.manager.Enqueue(ctx, &audit.Event{
		Username:   attempt.Username,
		UserID:     attempt.UserID,
		Outcome:    audit.Outcome(attempt.Outcome),
		ClientIP:   attempt.ClientIP,
		UserAgent:  attempt.UserAgent,
		OccurredAt: attempt.At.UTC(),
	})
	return err
}

// loginHistory は直近のログイン履歴を返す取得元です。
type loginHistory interface {
	Recent(ctx context.Context, userID int64, n int) ([]audit.Event, error)
}

func setupAudit(redisURL string, rdb *redis.Client, logger *logrus.Logger) (*audit.Manager, error) {
	store := audit.NewStore(rdb, audit.DefaultHistoryLimit, audit.DefaultHistoryTTL)
	return audit.NewManager(redisURL, store, logger)
}

// loginHistoryHandler は GET /profile/logins のハンドラーです。RequireLogin の後ろで使います。
func loginHistoryHandler(history loginHistory, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "NOT_FOUND",
				"message": "リソースが見つかりません",
			})
			return
		}

		limit := audit.DefaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    "INVALID_INPUT",
					"message": "limit は正の整数で指定してください",
				})
				return
			}
			limit = n
		}

		events, err := history.Recent(c.Request.Context(), userID, limit)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Error("failed to load login history")
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ログイン履歴の取得に失敗しました",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"logins": events})
	}
}
