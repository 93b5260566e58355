package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"neckcare-posture/internal/models"
)

// MemoryAggregationStore 内存聚合存储（单元测试与本地开发用）
// 与 Postgres 实现保持相同语义
type MemoryAggregationStore struct {
	mu      sync.Mutex
	samples map[string]map[int64]models.Sample        // user_id → ts → sample
	buckets map[string]map[int64]*models.HourlyBucket // user_id → hour_start → bucket
}

// NewMemoryAggregationStore 创建内存聚合存储
func NewMemoryAggregationStore() *MemoryAggregationStore {
	return &MemoryAggregationStore{
		samples: make(map[string]map[int64]models.Sample),
		buckets: make(map[string]map[int64]*models.HourlyBucket),
	}
}

var _ AggregationStore = (*MemoryAggregationStore)(nil)

// StoreSampleAndAccumulate 追加采样并累计小时桶
func (r *MemoryAggregationStore) StoreSampleAndAccumulate(ctx context.Context, sample *models.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userSamples, ok := r.samples[sample.UserID]
	if !ok {
		userSamples = make(map[int64]models.Sample)
		r.samples[sample.UserID] = userSamples
	}
	if _, dup := userSamples[sample.Ts]; dup {
		// 重试写入的重复采样：不重复累计
		return nil
	}
	userSamples[sample.Ts] = *sample

	gap := sample.SampleGapS
	if gap <= 0 {
		gap = DefaultSampleGapS
	}

	userBuckets, ok := r.buckets[sample.UserID]
	if !ok {
		userBuckets = make(map[int64]*models.HourlyBucket)
		r.buckets[sample.UserID] = userBuckets
	}

	hourStart := HourStartMs(sample.Ts)
	b, ok := userBuckets[hourStart]
	if !ok {
		b = &models.HourlyBucket{UserID: sample.UserID, HourStart: hourStart}
		userBuckets[hourStart] = b
	}
	if b.Finalized {
		// 已结算的桶不可再累计
		return nil
	}

	b.SumWeighted += sample.AngleDeg * gap
	b.Weight += gap
	if sample.EnteredTurtle {
		b.Count++
	}
	return nil
}

// FinalizeUpToNow 结算已完整过去的小时桶
func (r *MemoryAggregationStore) FinalizeUpToNow(ctx context.Context, userID string, now time.Time, includeCurrentHour bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nowMs := now.UnixMilli()
	currentHour := HourStartMs(nowMs)

	var updated int64
	for hourStart, b := range r.buckets[userID] {
		switch {
		case hourStart+3600000 <= nowMs && !b.Finalized && b.Weight > 0:
			avg := b.SumWeighted / b.Weight
			b.AvgAngle = &avg
			b.Finalized = true
			updated++
		case includeCurrentHour && hourStart == currentHour && b.Weight > 0:
			// 当前小时桶仅重算 avg_angle，保持非终态
			avg := b.SumWeighted / b.Weight
			b.AvgAngle = &avg
			updated++
		}
	}
	return updated, nil
}

// GetTodayHourly 返回今天的小时桶（升序）
func (r *MemoryAggregationStore) GetTodayHourly(ctx context.Context, userID string, now time.Time) ([]models.HourlyBucket, error) {
	return r.GetHourlyRange(ctx, userID, DayStartMs(now), now.UnixMilli())
}

// GetHourlyRange 按范围查询小时桶（升序）
func (r *MemoryAggregationStore) GetHourlyRange(ctx context.Context, userID string, from, to int64) ([]models.HourlyBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buckets []models.HourlyBucket
	for hourStart, b := range r.buckets[userID] {
		if hourStart >= from && hourStart <= to {
			buckets = append(buckets, *b)
		}
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].HourStart < buckets[j].HourStart
	})
	return buckets, nil
}

// ComputeTodaySoFarAverage 今天到目前为止的加权平均角度
func (r *MemoryAggregationStore) ComputeTodaySoFarAverage(ctx context.Context, userID string, now time.Time) (float64, bool, error) {
	buckets, err := r.GetTodayHourly(ctx, userID, now)
	if err != nil {
		return 0, false, err
	}

	var sum, weight float64
	for _, b := range buckets {
		if b.Weight > 0 {
			sum += b.SumWeighted
			weight += b.Weight
		}
	}
	if weight == 0 {
		return 0, false, nil
	}
	return sum / weight, true, nil
}

// SampleCount 某用户已存储的采样数（测试辅助）
func (r *MemoryAggregationStore) SampleCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples[userID])
}
