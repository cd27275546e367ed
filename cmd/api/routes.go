package main

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/transit-portal/internal/auth"
	"github.com/yourusername/transit-portal/internal/metrics"
	"github.com/yourusername/transit-portal/internal/web"
)

const (
	serviceName    = "transit-portal"
	serviceVersion = "0.1.0"
)

// app はプロセス起動時に一度だけ組み立て、以後は変更しない依存の集合です。
type app struct {
	auth        *auth.Manager
	cookieStore sessions.Store
	pictures    auth.PictureSource
	history     loginHistory
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// setupRoutes はページ・認証・プロフィール周りの配線を行います。
func (a *app) setupRoutes(router *gin.Engine) {
	if a.metrics != nil {
		router.Use(a.metrics.Middleware())
		router.GET("/metrics", a.metrics.Handler())
	}

	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	sessionManager := a.auth.Sessions()
	site := router.Group("")
	site.Use(sessionManager.Middleware(a.cookieStore))
	{
		site.GET("/", web.IndexHandler(sessionManager))
		site.GET("/transit_times", web.TransitTimes)

		site.POST("/login", a.auth.Login)
		site.GET("/logout", a.auth.Logout)

		profile := site.Group("/profile")
		profile.Use(a.auth.RequireLogin())
		{
			profile.GET("", a.auth.Profile)
			if a.pictures != nil {
				profile.GET("/picture", a.auth.ProfilePicture(a.pictures))
			}
			if a.history != nil {
				profile.GET("/logins", loginHistoryHandler(a.history, a.logger))
			}
		}
	}
}
