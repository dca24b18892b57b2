package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window は1キー分の固定ウィンドウ。
type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter はプロセス内のマップでウィンドウを保持するLimiter。
// 単一の排他ロックでカウンタ更新を直列化する。
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// MemoryOption はMemoryLimiterの設定オプション。
type MemoryOption func(*MemoryLimiter)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// NewMemoryLimiter はMemoryLimiterを生成する。
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow は固定ウィンドウ方式で試行の可否を判定する。
func (l *MemoryLimiter) Allow(_ context.Context, key string, maxAttempts int, d time.Duration) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(d)}
		return Decision{Allowed: true, Remaining: maxAttempts - 1}, nil
	}

	if w.count >= maxAttempts {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}

	w.count++
	return Decision{Allowed: true, Remaining: maxAttempts - w.count}, nil
}

// Sweep はリセット時刻を過ぎたウィンドウを削除し、削除件数を返す。
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len は保持しているウィンドウ数を返す。テスト用。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartSweeper はバックグラウンドで定期的にSweepを実行する。Stopで停止する。
func (l *MemoryLimiter) StartSweeper(interval time.Duration) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop はスイーパーを停止し、終了を待つ。複数回呼んでもよい。
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
}

// compile-time interface check
var _ Limiter = (*MemoryLimiter)(nil)
