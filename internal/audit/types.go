// Package audit はログイン試行の非同期記録と履歴の参照を提供します。
//
// ログインハンドラーはイベントを Asynq キューに投入するだけで、
// Redis への書き込みはワーカー側で行います。
package audit

import "time"

// Outcome はログイン試行の結果を表します。
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeLocked  Outcome = "locked"
	OutcomeError   Outcome = "error"
)

// Event は1回分のログイン試行です。
type Event struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	UserID     int64     `json:"userId,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	ClientIP   string    `json:"clientIp"`
	UserAgent  string    `json:"userAgent,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
