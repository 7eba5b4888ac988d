// Package cleanup は親を失ったアイテム（孤児）の定期削除ジョブを提供する。
// itemsのparent_idには外部キーがないため、親フォルダを削除しても子は残る。
// ワーカーはこれを定期的に掃除し、削除を最終的に配下へ伝播させる。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/souhyou/server/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const sweepQuery = `
	DELETE FROM items
	WHERE id IN (
		SELECT c.id FROM items c
		WHERE c.parent_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM items p WHERE p.id = c.parent_id)
		LIMIT $1
	)`

// OrphanSweepJob は孤児アイテムの削除ジョブ。
// 1回の実行で孤児がなくなるまでバッチ削除を繰り返す。
// 孤児の削除でその子が新たに孤児になるため、深いツリーも1回の実行で片付く。
type OrphanSweepJob struct {
	db        Executor
	logger    *slog.Logger
	collector metrics.MetricsCollector

	BatchSize int // 1回のDELETEで削除する最大件数（デフォルト: 500）
	MaxPasses int // 1回の実行で繰り返すDELETEの上限（デフォルト: 1000）
}

// NewOrphanSweepJob は新しいOrphanSweepJobを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewOrphanSweepJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *OrphanSweepJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &OrphanSweepJob{
		db:        db,
		logger:    logger,
		collector: collector,
		BatchSize: 500,
		MaxPasses: 1000,
	}
}

// Run は孤児アイテムを削除し、削除件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *OrphanSweepJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	var total int64
	passes := 0
	for passes < j.MaxPasses {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		passes++

		result, err := j.db.ExecContext(ctx, sweepQuery, j.BatchSize)
		if err != nil {
			j.logger.Error("孤児アイテムの削除に失敗しました",
				slog.String("error", err.Error()),
				slog.Int64("deleted_count", total),
			)
			j.collector.RecordOrphansSwept(total)
			return total, fmt.Errorf("孤児アイテムの削除に失敗: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			j.logger.Error("削除件数の取得に失敗しました",
				slog.String("error", err.Error()),
			)
			j.collector.RecordOrphansSwept(total)
			return total, fmt.Errorf("削除件数の取得に失敗: %w", err)
		}
		total += n
		if n == 0 {
			break
		}
	}

	j.collector.RecordOrphansSwept(total)
	j.logger.Info("孤児アイテムの削除ジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Int("passes", passes),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return total, nil
}

// Start は起動直後に1回、その後interval毎にRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *OrphanSweepJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *OrphanSweepJob) runOnce(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("orphan sweep failed", slog.String("error", err.Error()))
	}
}
