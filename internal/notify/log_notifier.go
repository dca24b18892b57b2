package notify

import (
	"context"
	"log/slog"
	"time"
)

// LogNotifier はパスコードを構造化ログに出力するだけのNotifier。開発環境専用。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasscode はパスコードをログに出力する。
func (n *LogNotifier) SendPasscode(ctx context.Context, email, code string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "passcode issued (log delivery)",
		slog.String("email", email),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// compile-time interface check
var _ Notifier = (*LogNotifier)(nil)
