package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// readinessTimeout は依存先ごとの疎通確認のタイムアウト。
const readinessTimeout = 3 * time.Second

// ReadinessCheck は依存先の疎通確認を表す。
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler はプロセスの生存確認に "ok" を返す。
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// NewReadyHandler は全ての依存先に疎通できる場合のみ200を返すハンドラーを生成する。
// 失敗した依存先はレスポンスに名前のみ含め、詳細はログに記録する。
func NewReadyHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(checks))
		ready := true

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := c.Check(ctx)
			cancel()

			if err != nil {
				ready = false
				status[c.Name] = "unavailable"
				slog.Warn("readiness check failed",
					slog.String("dependency", c.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			status[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ready":        ready,
			"dependencies": status,
		})
	}
}
