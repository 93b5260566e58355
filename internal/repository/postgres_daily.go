package repository

import (
	"context"
	"database/sql"
	"fmt"

	"neckcare-posture/internal/models"

	"go.uber.org/zap"
)

// PostgresDailySummaryStore 基于 PostgreSQL 的每日汇总存储实现
type PostgresDailySummaryStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDailySummaryStore 创建每日汇总存储
func NewPostgresDailySummaryStore(db *sql.DB, logger *zap.Logger) *PostgresDailySummaryStore {
	return &PostgresDailySummaryStore{db: db, logger: logger}
}

var _ DailySummaryStore = (*PostgresDailySummaryStore)(nil)

// UpsertDaily 写入/覆盖某日汇总
// good_day 由前一日行推进：count ≤ GoodDayMaxWarnings 时 +1，否则沿用
func (r *PostgresDailySummaryStore) UpsertDaily(ctx context.Context, userID, date string, sumWeighted, weightSeconds float64, count int) (*models.DailySummary, error) {
	prevDate, err := PrevDateISO(date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	var prevGoodDay int
	err = r.db.QueryRowContext(ctx, `
		SELECT good_day FROM posture_daily
		WHERE user_id = $1 AND date = $2::date`,
		userID, prevDate,
	).Scan(&prevGoodDay)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read previous day: %w", err)
	}

	goodDay := prevGoodDay
	if count <= models.GoodDayMaxWarnings {
		goodDay++
	}

	var avgAngle sql.NullFloat64
	if weightSeconds > 0 {
		avgAngle = sql.NullFloat64{Float64: sumWeighted / weightSeconds, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO posture_daily (user_id, date, sum_weighted, weight_seconds, count, avg_angle, good_day)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, date) DO UPDATE SET
			sum_weighted   = EXCLUDED.sum_weighted,
			weight_seconds = EXCLUDED.weight_seconds,
			count          = EXCLUDED.count,
			avg_angle      = EXCLUDED.avg_angle,
			good_day       = EXCLUDED.good_day`,
		userID, date, sumWeighted, weightSeconds, count, avgAngle, goodDay,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily summary: %w", err)
	}

	summary := &models.DailySummary{
		UserID:        userID,
		Date:          date,
		SumWeighted:   sumWeighted,
		WeightSeconds: weightSeconds,
		Count:         count,
		GoodDay:       goodDay,
	}
	if avgAngle.Valid {
		v := avgAngle.Float64
		summary.AvgAngle = &v
	}
	return summary, nil
}

// GetByDate 查询某日汇总，不存在返回 (nil, nil)
func (r *PostgresDailySummaryStore) GetByDate(ctx context.Context, userID, date string) (*models.DailySummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, date::text, sum_weighted, weight_seconds, count, avg_angle, good_day
		FROM posture_daily
		WHERE user_id = $1 AND date = $2::date`,
		userID, date,
	)

	summary, err := scanDailySummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summary: %w", err)
	}
	return summary, nil
}

// GetRange 查询 [fromDate, toDate] 的汇总行（升序）
func (r *PostgresDailySummaryStore) GetRange(ctx context.Context, userID, fromDate, toDate string) ([]models.DailySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, date::text, sum_weighted, weight_seconds, count, avg_angle, good_day
		FROM posture_daily
		WHERE user_id = $1 AND date >= $2::date AND date <= $3::date
		ORDER BY date ASC`,
		userID, fromDate, toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.DailySummary
	for rows.Next() {
		s, err := scanDailySummary(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily summaries: %w", err)
	}
	return summaries, nil
}

// GetLatestGoodDay 查询 uptoDate（含）之前最近一行的 good_day
func (r *PostgresDailySummaryStore) GetLatestGoodDay(ctx context.Context, userID, uptoDate string) (int, error) {
	var goodDay int
	err := r.db.QueryRowContext(ctx, `
		SELECT good_day FROM posture_daily
		WHERE user_id = $1 AND date <= $2::date
		ORDER BY date DESC
		LIMIT 1`,
		userID, uptoDate,
	).Scan(&goodDay)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest good day: %w", err)
	}
	return goodDay, nil
}

func scanDailySummary(scan func(...interface{}) error) (*models.DailySummary, error) {
	var s models.DailySummary
	var avgAngle sql.NullFloat64
	if err := scan(&s.UserID, &s.Date, &s.SumWeighted, &s.WeightSeconds, &s.Count, &avgAngle, &s.GoodDay); err != nil {
		return nil, err
	}
	if avgAngle.Valid {
		v := avgAngle.Float64
		s.AvgAngle = &v
	}
	return &s, nil
}
