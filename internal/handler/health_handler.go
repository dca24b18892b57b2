package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck は依存先1つ分の疎通確認。
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Failed    []string `json:"failed,omitempty"`
}

// NewHealthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// GET /health
// いずれかの確認が失敗した場合は503を返す。
func NewHealthHandler(timeout time.Duration, checks ...HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var failed []string
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				slog.ErrorContext(r.Context(), "health check failed",
					slog.String("check", c.Name),
					slog.String("error", err.Error()),
				)
				failed = append(failed, c.Name)
			}
		}

		resp := healthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK
		if len(failed) > 0 {
			resp.Status = "unavailable"
			resp.Failed = failed
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	})
}
