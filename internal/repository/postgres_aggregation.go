package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"neckcare-posture/internal/models"

	"go.uber.org/zap"
)

// PostgresAggregationStore 基于 PostgreSQL 的聚合存储实现
type PostgresAggregationStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAggregationStore 创建聚合存储
func NewPostgresAggregationStore(db *sql.DB, logger *zap.Logger) *PostgresAggregationStore {
	return &PostgresAggregationStore{db: db, logger: logger}
}

// 确保实现了接口
var _ AggregationStore = (*PostgresAggregationStore)(nil)

// StoreSampleAndAccumulate 追加原始采样并累计小时桶（单事务）
// 采样按 (user_id, ts) 冲突去重：重复写入直接返回，不重复累计
func (r *PostgresAggregationStore) StoreSampleAndAccumulate(ctx context.Context, sample *models.Sample) error {
	gap := sample.SampleGapS
	if gap <= 0 {
		gap = DefaultSampleGapS
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO posture_samples
			(user_id, ts, angle_deg, is_turtle, has_pose, session_id, sample_gap_s, entered_turtle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, ts) DO NOTHING`,
		sample.UserID, sample.Ts, sample.AngleDeg, sample.IsTurtle,
		sample.HasPose, sample.SessionID, gap, sample.EnteredTurtle,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// 重试写入的重复采样：不重复累计
		r.logger.Debug("Duplicate sample skipped",
			zap.String("user_id", sample.UserID),
			zap.Int64("ts", sample.Ts),
		)
		return nil
	}

	countInc := 0
	if sample.EnteredTurtle {
		countInc = 1
	}

	// 已结算的桶不可再累计（finalized=0 时 weight 单调递增）
	_, err = tx.ExecContext(ctx, `
		INSERT INTO posture_hourly (user_id, hour_start, sum_weighted, weight, count, finalized)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (user_id, hour_start) DO UPDATE SET
			sum_weighted = posture_hourly.sum_weighted + EXCLUDED.sum_weighted,
			weight       = posture_hourly.weight + EXCLUDED.weight,
			count        = posture_hourly.count + EXCLUDED.count
		WHERE posture_hourly.finalized = 0`,
		sample.UserID, HourStartMs(sample.Ts), sample.AngleDeg*gap, gap, countInc,
	)
	if err != nil {
		return fmt.Errorf("failed to accumulate hourly bucket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample: %w", err)
	}
	return nil
}

// FinalizeUpToNow 结算已完整过去的小时桶
func (r *PostgresAggregationStore) FinalizeUpToNow(ctx context.Context, userID string, now time.Time, includeCurrentHour bool) (int64, error) {
	nowMs := now.UnixMilli()

	res, err := r.db.ExecContext(ctx, `
		UPDATE posture_hourly
		SET avg_angle = sum_weighted / weight, finalized = 1
		WHERE user_id = $1 AND hour_start + 3600000 <= $2
			AND finalized = 0 AND weight > 0`,
		userID, nowMs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to finalize hourly buckets: %w", err)
	}
	total, _ := res.RowsAffected()

	if includeCurrentHour {
		// 当前小时桶仅重算 avg_angle，保持非终态（下次仍可重算）
		res, err := r.db.ExecContext(ctx, `
			UPDATE posture_hourly
			SET avg_angle = sum_weighted / weight
			WHERE user_id = $1 AND hour_start = $2 AND weight > 0`,
			userID, HourStartMs(nowMs),
		)
		if err != nil {
			return total, fmt.Errorf("failed to refresh current hour bucket: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	return total, nil
}

// GetTodayHourly 返回今天的小时桶（升序）
func (r *PostgresAggregationStore) GetTodayHourly(ctx context.Context, userID string, now time.Time) ([]models.HourlyBucket, error) {
	return r.GetHourlyRange(ctx, userID, DayStartMs(now), now.UnixMilli())
}

// GetHourlyRange 按范围查询小时桶（升序）
func (r *PostgresAggregationStore) GetHourlyRange(ctx context.Context, userID string, from, to int64) ([]models.HourlyBucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, hour_start, sum_weighted, weight, count, avg_angle, finalized
		FROM posture_hourly
		WHERE user_id = $1 AND hour_start >= $2 AND hour_start <= $3
		ORDER BY hour_start ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly buckets: %w", err)
	}
	defer rows.Close()

	var buckets []models.HourlyBucket
	for rows.Next() {
		var b models.HourlyBucket
		var avgAngle sql.NullFloat64
		var finalized int
		if err := rows.Scan(&b.UserID, &b.HourStart, &b.SumWeighted, &b.Weight, &b.Count, &avgAngle, &finalized); err != nil {
			return nil, fmt.Errorf("failed to scan hourly bucket: %w", err)
		}
		if avgAngle.Valid {
			v := avgAngle.Float64
			b.AvgAngle = &v
		}
		b.Finalized = finalized != 0
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hourly buckets: %w", err)
	}
	return buckets, nil
}

// ComputeTodaySoFarAverage 今天到目前为止的加权平均角度
// 以累计字段为准，与 finalized 标志无关；总权重为 0 时返回"无数据"
func (r *PostgresAggregationStore) ComputeTodaySoFarAverage(ctx context.Context, userID string, now time.Time) (float64, bool, error) {
	var sum, weight float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sum_weighted), 0), COALESCE(SUM(weight), 0)
		FROM posture_hourly
		WHERE user_id = $1 AND hour_start >= $2 AND hour_start <= $3 AND weight > 0`,
		userID, DayStartMs(now), now.UnixMilli(),
	).Scan(&sum, &weight)
	if err != nil {
		return 0, false, fmt.Errorf("failed to compute today average: %w", err)
	}

	if weight == 0 {
		// 新用户/新的一天：无数据不是错误
		return 0, false, nil
	}
	return sum / weight, true, nil
}
