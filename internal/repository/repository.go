package repository

import (
	"context"
	"time"

	"neckcare-posture/internal/models"
)

// DefaultSampleGapS 采样未携带间隔时的默认覆盖秒数
const DefaultSampleGapS = 10.0

// AggregationStore 姿态采样与小时桶聚合存储
// 单写者约束：同一 (user_id, hour_start) 的读改写序列必须串行化，
// 以保证 sum_weighted/weight/count 相对读取的原子性
type AggregationStore interface {
	// StoreSampleAndAccumulate 追加原始采样并累计到对应小时桶
	// 按 (user_id, ts) 去重：重试的写入不会重复累计
	StoreSampleAndAccumulate(ctx context.Context, sample *models.Sample) error

	// FinalizeUpToNow 结算已完整过去的小时桶（avg_angle = sum/weight）
	// includeCurrentHour=true 时额外重算当前小时桶的 avg_angle（保持非终态）
	// 幂等：重复调用不改变 sum_weighted/weight，仅重算 avg_angle
	// 返回本次更新的桶数
	FinalizeUpToNow(ctx context.Context, userID string, now time.Time, includeCurrentHour bool) (int64, error)

	// GetTodayHourly 返回今天（[当日零点, now]）的小时桶，按 hour_start 升序
	GetTodayHourly(ctx context.Context, userID string, now time.Time) ([]models.HourlyBucket, error)

	// GetHourlyRange 按 [from, to]（epoch 毫秒）范围查询小时桶，升序
	GetHourlyRange(ctx context.Context, userID string, from, to int64) ([]models.HourlyBucket, error)

	// ComputeTodaySoFarAverage 今天到目前为止的加权平均角度
	// 跨桶聚合以累计字段为准（与 finalized 无关）；ok=false 表示无数据
	ComputeTodaySoFarAverage(ctx context.Context, userID string, now time.Time) (avg float64, ok bool, err error)
}

// DailySummaryStore 每日汇总存储
type DailySummaryStore interface {
	// UpsertDaily 写入/覆盖某日汇总，并按前一日 good_day 推进"好日子"计数：
	// count ≤ GoodDayMaxWarnings 时 good_day = 前日 good_day + 1，否则沿用前日值
	UpsertDaily(ctx context.Context, userID, date string, sumWeighted, weightSeconds float64, count int) (*models.DailySummary, error)

	// GetByDate 查询某日汇总，不存在返回 (nil, nil)
	GetByDate(ctx context.Context, userID, date string) (*models.DailySummary, error)

	// GetRange 查询 [fromDate, toDate] 的汇总行，按日期升序
	GetRange(ctx context.Context, userID, fromDate, toDate string) ([]models.DailySummary, error)

	// GetLatestGoodDay 查询 uptoDate（含）之前最近一行的 good_day，无数据返回 0
	GetLatestGoodDay(ctx context.Context, userID, uptoDate string) (int, error)
}

// HourStartMs 取时间戳（epoch 毫秒）所在小时的起点
func HourStartMs(ts int64) int64 {
	return ts - ts%3600000
}

// DayStartMs 取 now 所在日期的零点（本地时区），epoch 毫秒
func DayStartMs(now time.Time) int64 {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UnixMilli()
}

// DateISO 格式化为 "YYYY-MM-DD"
func DateISO(t time.Time) string {
	return t.Format("2006-01-02")
}

// PrevDateISO 前一天的 "YYYY-MM-DD"
func PrevDateISO(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format("2006-01-02"), nil
}
