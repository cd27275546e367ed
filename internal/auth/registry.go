package auth

import (
	"context"
	"sync"
	"time"
)

// Record はセッショントークンに紐づくサーバー側の情報です。
type Record struct {
	UserID   int64     `json:"userId"`
	IssuedAt time.Time `json:"issuedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

// Registry はセッショントークンとユーザーの対応を保持します。
// Get は存在しないトークンに対して (nil, nil) を返します。
type Registry interface {
	Save(ctx context.Context, token string, record Record, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Record, error)
	Touch(ctx context.Context, token string, lastSeen time.Time) error
	Delete(ctx context.Context, token string) error
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryRegistry はプロセス内にセッションを保持する Registry です（開発・テスト用）。
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryRegistry は MemoryRegistry を作成します。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Save はセッションを保存します。保存のたびに期限切れのセッションを掃除します。
func (r *MemoryRegistry) Save(_ context.Context, token string, record Record, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep()
	entry := &memoryEntry{record: record}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.entries[token] = entry
	return nil
}

// Get はセッションを取得します。期限切れのものはその場で削除します。
func (r *MemoryRegistry) Get(_ context.Context, token string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return nil, nil
	}
	if r.expired(entry) {
		delete(r.entries, token)
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

// Touch は最終アクセス時刻を更新します。有効期限は変えません。
func (r *MemoryRegistry) Touch(_ context.Context, token string, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok || r.expired(entry) {
		return nil
	}
	entry.record.LastSeen = lastSeen
	return nil
}

// Delete はセッションを削除します。存在しなくてもエラーにはしません。
func (r *MemoryRegistry) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, token)
	return nil
}

// Len は保持しているセッション数を返します。
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sweep は期限切れのエントリを削除します。r.mu を保持して呼びます。
func (r *MemoryRegistry) sweep() {
	for token, entry := range r.entries {
		if r.expired(entry) {
			delete(r.entries, token)
		}
	}
}

func (r *MemoryRegistry) expired(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt)
}
