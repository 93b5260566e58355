package service

import (
	"context"
	"fmt"
	"time"

	"neckcare-posture/internal/export"
	"neckcare-posture/internal/models"
	"neckcare-posture/internal/repository"

	"go.uber.org/zap"
)

// TodaySummary 今日概览（UI 首页展示）
type TodaySummary struct {
	AvgAngle *float64              `json:"avg_angle"` // 今天到目前为止的加权均值，无数据为 nil
	GoodDays int                   `json:"good_days"`
	Hourly   []models.HourlyBucket `json:"hourly"`
}

// WeeklySummary 最近 7 天概览
type WeeklySummary struct {
	Days     []models.DailySummary `json:"days"`
	AvgAngle *float64              `json:"avg_angle"` // 7 天加权均值
	GoodDays int                   `json:"good_days"`
}

// SummaryService 小时桶 → 每日汇总的滚动聚合
type SummaryService struct {
	aggStore   repository.AggregationStore
	dailyStore repository.DailySummaryStore
	logger     *zap.Logger
}

// NewSummaryService 创建汇总服务
func NewSummaryService(
	aggStore repository.AggregationStore,
	dailyStore repository.DailySummaryStore,
	logger *zap.Logger,
) *SummaryService {
	return &SummaryService{
		aggStore:   aggStore,
		dailyStore: dailyStore,
		logger:     logger,
	}
}

// RollupDay 把某日的小时桶汇总为每日行
// 可对当天反复调用：累计字段覆盖写入，good_day 由前一日推进，不叠加
func (s *SummaryService) RollupDay(ctx context.Context, userID string, day time.Time) (*models.DailySummary, error) {
	from := repository.DayStartMs(day)
	to := from + 24*3600*1000 - 1

	buckets, err := s.aggStore.GetHourlyRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly buckets: %w", err)
	}

	var sumWeighted, weight float64
	count := 0
	for _, b := range buckets {
		sumWeighted += b.SumWeighted
		weight += b.Weight
		count += b.Count
	}

	summary, err := s.dailyStore.UpsertDaily(ctx, userID, repository.DateISO(day), sumWeighted, weight, count)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily summary: %w", err)
	}

	s.logger.Debug("Rolled up daily summary",
		zap.String("user_id", userID),
		zap.String("date", summary.Date),
		zap.Float64("weight_seconds", weight),
		zap.Int("warning_count", count),
		zap.Int("good_day", summary.GoodDay),
	)
	return summary, nil
}

// GetTodaySummary 今日概览
func (s *SummaryService) GetTodaySummary(ctx context.Context, userID string, now time.Time) (*TodaySummary, error) {
	result := &TodaySummary{}

	avg, ok, err := s.aggStore.ComputeTodaySoFarAverage(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute today average: %w", err)
	}
	if ok {
		result.AvgAngle = &avg
	}

	result.Hourly, err = s.aggStore.GetTodayHourly(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load today hourly buckets: %w", err)
	}

	result.GoodDays, err = s.dailyStore.GetLatestGoodDay(ctx, userID, repository.DateISO(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load good day counter: %w", err)
	}
	return result, nil
}

// GetWeeklySummary 以 endDay 为最后一天的最近 7 天概览
func (s *SummaryService) GetWeeklySummary(ctx context.Context, userID string, endDay time.Time) (*WeeklySummary, error) {
	fromDate := repository.DateISO(endDay.AddDate(0, 0, -6))
	toDate := repository.DateISO(endDay)

	days, err := s.dailyStore.GetRange(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily summaries: %w", err)
	}

	result := &WeeklySummary{Days: days}

	var sumWeighted, weight float64
	for _, d := range days {
		sumWeighted += d.SumWeighted
		weight += d.WeightSeconds
	}
	if weight > 0 {
		avg := sumWeighted / weight
		result.AvgAngle = &avg
	}

	if len(days) > 0 {
		result.GoodDays = days[len(days)-1].GoodDay
	} else {
		result.GoodDays, err = s.dailyStore.GetLatestGoodDay(ctx, userID, toDate)
		if err != nil {
			return nil, fmt.Errorf("failed to load good day counter: %w", err)
		}
	}
	return result, nil
}

// ExportWeeklyReport 导出最近 7 天的周报 Excel
func (s *SummaryService) ExportWeeklyReport(ctx context.Context, userID string, endDay time.Time) ([]byte, error) {
	summary, err := s.GetWeeklySummary(ctx, userID, endDay)
	if err != nil {
		return nil, err
	}

	data, err := export.GenerateWeeklyReport(summary.Days)
	if err != nil {
		return nil, fmt.Errorf("failed to generate weekly report: %w", err)
	}

	s.logger.Info("Generated weekly posture report",
		zap.String("user_id", userID),
		zap.Int("day_count", len(summary.Days)),
		zap.Int("size_bytes", len(data)),
	)
	return data, nil
}
