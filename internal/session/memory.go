package session

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/projvault/internal/model"
)

// MemoryStore はプロセス内マップにセッションを保持するStore。開発・単一インスタンス用。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

// NewMemoryStore はMemoryStoreを生成する。nowがnilの場合はtime.Nowを使う。
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]model.Session),
		now:      now,
	}
}

// Create はセッションを保存する。
func (s *MemoryStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

// FindByID は有効期限内のセッションを返す。
func (s *MemoryStore) FindByID(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || !session.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	return &session, nil
}

// DeleteByID はセッションを削除する。
func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
