// Package janitor は使用済み・期限切れパスコードと期限切れセッションを定期的に削除する。
// 削除は冪等で、失敗しても次の周期で再試行される。
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/projvault/internal/metrics"
)

// DefaultInterval はパスコード削除のデフォルト実行間隔。
const DefaultInterval = 5 * time.Minute

// PasscodePurger は使用済み・期限切れパスコードの削除インターフェース。
type PasscodePurger interface {
	PurgeExpiredOrConsumed(ctx context.Context) (int64, error)
}

// SessionSweeper は期限切れセッションの削除インターフェース。
// Redisのように保存先自体が期限を管理する場合は不要。
type SessionSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Result は1回分の削除結果。
type Result struct {
	Passcodes int64
	Sessions  int64
}

// Janitor は削除処理を一定間隔で実行するバックグラウンドジョブ。
// Startで起動し、Stopでgoroutineの終了まで待つ。
type Janitor struct {
	passcodes PasscodePurger
	sessions  SessionSweeper
	interval  time.Duration
	logger    *slog.Logger
	metrics   metrics.MetricsCollector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option はJanitorの設定オプション。
type Option func(*Janitor)

// WithSessionSweeper は期限切れセッションの削除も実行する。
func WithSessionSweeper(s SessionSweeper) Option {
	return func(j *Janitor) {
		j.sessions = s
	}
}

// WithLogger はログ出力先を指定する。
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithMetrics はメトリクス収集を有効にする。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(j *Janitor) {
		j.metrics = m
	}
}

// New はJanitorを生成する。intervalが0以下の場合はDefaultIntervalを使う。
func New(passcodes PasscodePurger, interval time.Duration, opts ...Option) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	j := &Janitor{
		passcodes: passcodes,
		interval:  interval,
		logger:    slog.Default(),
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start は削除ループを起動する。起動直後に1回実行し、その後interval毎に実行する。
// 既に起動している場合は何もしない。
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.loop(ctx, j.done)

	j.logger.Info("janitor started", slog.Duration("interval", j.interval))
}

// Stop は削除ループを停止し、goroutineの終了を待つ。未起動・停止済みでも安全に呼べる。
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	j.logger.Info("janitor stopped")
}

func (j *Janitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	_, _ = j.RunOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}

// RunOnce は削除処理を1回実行する。
// パスコード削除が失敗してもセッション削除は実行し、最初のエラーを返す。
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	var result Result
	var firstErr error

	// 1. パスコード
	n, err := j.passcodes.PurgeExpiredOrConsumed(ctx)
	if err != nil {
		j.metrics.RecordJanitorFailure()
		j.logger.Error("passcode purge failed", slog.String("error", err.Error()))
		firstErr = err
	} else {
		result.Passcodes = n
		j.metrics.RecordJanitorPurged(n)
	}

	// 2. セッション
	if j.sessions != nil {
		n, err := j.sessions.DeleteExpired(ctx)
		if err != nil {
			j.metrics.RecordJanitorFailure()
			j.logger.Error("session sweep failed", slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			result.Sessions = n
		}
	}

	if firstErr != nil {
		return result, firstErr
	}

	j.logger.Info("janitor pass completed",
		slog.Int64("deleted_count", result.Passcodes),
		slog.Int64("sessions_deleted", result.Sessions),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}
