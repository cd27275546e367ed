// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/transit-portal/internal/audit"
	"github.com/yourusername/transit-portal/internal/auth"
	"github.com/yourusername/transit-portal/internal/config"
	"github.com/yourusername/transit-portal/internal/metrics"
	"github.com/yourusername/transit-portal/internal/storage"
	"github.com/yourusername/transit-portal/internal/users"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := setupLogger(cfg.LogLevel)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// 資格情報ストア（読み取り専用で使用）
	db, err := users.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.SessionStore == config.SessionStoreRedis || cfg.AuditEnabled {
		rdb, err = connectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
	}

	var auditManager *audit.Manager
	if cfg.AuditEnabled {
		auditManager, err = setupAudit(cfg.RedisURL, rdb, logger)
		if err != nil {
			logger.Fatalf("Failed to set up login audit: %v", err)
		}
		auditManager.StartWorkers()
		defer auditManager.Shutdown()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := newApp(cfg, db, rdb, auditManager, metrics.New(registry), logger)
	if err != nil {
		logger.Fatalf("Failed to initialise application: %v", err)
	}

	router, err := newRouter(cfg, app, logger)
	if err != nil {
		logger.Fatalf("Failed to initialise router: %v", err)
	}

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Starting API server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}

// newApp はリクエスト処理に必要な依存を一度だけ組み立てます。
func newApp(cfg *config.Config, db *sql.DB, rdb *redis.Client, auditManager *audit.Manager, m *metrics.Metrics, logger *logrus.Logger) (*app, error) {
	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		return nil, err
	}

	var registry auth.Registry
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		if rdb == nil {
			return nil, errors.New("redis client is required for SESSION_STORE=redis")
		}
		registry = auth.NewRedisRegistry(rdb)
	default:
		registry = auth.NewMemoryRegistry()
	}

	sessionOpts := auth.SessionOptions{
		CookieName:  cfg.SessionCookieName,
		MaxAge:      cfg.SessionMaxAge(),
		IdleTimeout: cfg.SessionIdleTimeout(),
		Secure:      cfg.IsRelease(),
	}
	sessionManager := auth.NewSessionManager(registry, sessionOpts, logger)

	opts := auth.Options{
		Observer: m,
		Logger:   logger,
	}
	a := &app{
		cookieStore: auth.NewCookieStore(secret, []byte(cfg.SessionEncryptionKey), sessionOpts),
		pictures:    storage.NewLocal(cfg.ProfilePictureDir),
		metrics:     m,
		logger:      logger,
	}
	if auditManager != nil {
		opts.Recorder = &auditRecorder{manager: auditManager}
		a.history = auditManager
	}
	a.auth = auth.NewManager(users.NewStore(db, cfg.DatabaseDriver), auth.NewVerifier(cfg.BcryptCost), sessionManager, opts)
	return a, nil
}

// newRouter はミドルウェアとルーティングを設定した Gin ルーターを作成します。
func newRouter(cfg *config.Config, a *app, logger *logrus.Logger) (*gin.Engine, error) {
	router := gin.New()

	// X-Forwarded-For は TRUSTED_PROXIES に含まれる接続元からのみ採用する。
	// 未設定なら接続元アドレスがそのままクライアントIPになる。
	if err := router.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	router.Use(requestLogger(logger), gin.Recovery())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	a.setupRoutes(router)
	return router, nil
}

// sessionSecret は署名鍵を返します。未設定の開発環境では起動ごとにランダム生成します。
func sessionSecret(cfg *config.Config, logger *logrus.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	logger.Warn("SESSION_SECRET is not set; using a random key (sessions will not survive a restart)")
	return buf, nil
}

func connectRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// requestLogger は gin のアクセスログを logrus に流すミドルウェアです。
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"client_ip": c.ClientIP(),
			"latency":   time.Since(start).String(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
