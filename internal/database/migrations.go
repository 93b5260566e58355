package database

import (
	"database/sql"
	"fmt"
)

// migrations 姿态服务本地表结构
// posture_samples: 原始采样（仅追加，按 (user_id, ts) 去重）
// posture_hourly:  小时桶累计（finalized=0 时 weight 单调递增）
// posture_daily:   每日汇总（good_day 为单调累计的"好日子"计数）
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS posture_samples (
		user_id       TEXT NOT NULL,
		ts            BIGINT NOT NULL,
		angle_deg     DOUBLE PRECISION NOT NULL,
		is_turtle     BOOLEAN NOT NULL DEFAULT FALSE,
		has_pose      BOOLEAN NOT NULL DEFAULT TRUE,
		session_id    TEXT,
		sample_gap_s  DOUBLE PRECISION NOT NULL DEFAULT 10,
		entered_turtle BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS posture_hourly (
		user_id      TEXT NOT NULL,
		hour_start   BIGINT NOT NULL,
		sum_weighted DOUBLE PRECISION NOT NULL DEFAULT 0,
		weight       DOUBLE PRECISION NOT NULL DEFAULT 0,
		count        INTEGER NOT NULL DEFAULT 0,
		avg_angle    DOUBLE PRECISION,
		finalized    SMALLINT NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, hour_start)
	)`,
	`CREATE TABLE IF NOT EXISTS posture_daily (
		user_id        TEXT NOT NULL,
		date           DATE NOT NULL,
		sum_weighted   DOUBLE PRECISION NOT NULL DEFAULT 0,
		weight_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		count          INTEGER NOT NULL DEFAULT 0,
		avg_angle      DOUBLE PRECISION,
		good_day       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posture_hourly_unfinalized
		ON posture_hourly (user_id, finalized, hour_start)`,
}

// Migrate 执行表结构迁移（幂等，服务启动时调用）
func Migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
