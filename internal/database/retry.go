package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialConnectBackoff は接続リトライの初回遅延。
	initialConnectBackoff = 500 * time.Millisecond
	// maxConnectBackoff は接続リトライの最大遅延。
	maxConnectBackoff = 8 * time.Second
)

// ConnectBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大8秒。
func ConnectBackoff(failures int) time.Duration {
	delay := initialConnectBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxConnectBackoff {
			return maxConnectBackoff
		}
	}
	return delay
}

// PingWithRetry は疎通確認を最大attempts回まで指数バックオフで繰り返す。
// attemptsが1未満の場合は1回だけ試行する。
func PingWithRetry(ctx context.Context, db *sql.DB, timeout time.Duration, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = Ping(ctx, db, timeout); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := ConnectBackoff(i)
		slog.Warn("database is not ready, retrying",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("database unreachable after %d attempts: %w", attempts, err)
}
