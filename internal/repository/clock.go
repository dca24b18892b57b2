package repository

import "time"

// Option はPostgresリポジトリ共通の設定オプション。
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock は現在時刻の取得関数を差し替える。
// 有効期限の比較と作成日時はこの時刻を基準にする。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
