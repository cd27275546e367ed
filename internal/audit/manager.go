package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	taskTypeLogin = "audit:login"
	queueName     = "audit"
)

// Manager はログインイベントの投入とワーカーを担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	logger *logrus.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, logger *logrus.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: logger,
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		logger: logger,
	}
	mux.HandleFunc(taskTypeLogin, manager.handleLoginTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.WithError(err).Error("asynq server stopped with error")
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

// Enqueue はイベントをキューに投入します。ID と時刻が空なら補完します。
func (m *Manager) Enqueue(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeLogin, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.TaskID(event.ID))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Recent はユーザーの直近のログイン履歴を返します。
func (m *Manager) Recent(ctx context.Context, userID int64, n int) ([]Event, error) {
	return m.store.Recent(ctx, userID, n)
}

func (m *Manager) handleLoginTask(ctx context.Context, task *asynq.Task) error {
	return processLoginTask(ctx, m.store, m.logger, task)
}

// processLoginTask はキューから取り出したイベントを履歴に保存します。
func processLoginTask(ctx context.Context, store *Store, logger *logrus.Logger, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("invalid audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.ID == "" {
		return fmt.Errorf("missing id in audit payload: %w", asynq.SkipRetry)
	}

	logger.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"username":  event.Username,
		"user_id":   event.UserID,
		"outcome":   event.Outcome,
		"client_ip": event.ClientIP,
	}).Info("login audit")

	return store.Append(ctx, &event)
}
