package repository

import (
	"context"
	"testing"
	"time"

	"neckcare-posture/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-06-01 00:00:00 UTC
var dayStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func sampleAt(ts int64, angle float64, gap float64) *models.Sample {
	return &models.Sample{
		UserID:     "user-1",
		Ts:         ts,
		AngleDeg:   angle,
		IsTurtle:   false,
		HasPose:    true,
		SessionID:  "session-1",
		SampleGapS: gap,
	}
}

func TestMemoryAggregation_EndToEndHourBucket(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()
	base := dayStart.UnixMilli()

	// 同一小时内三次采样：ts=0/10s/20s，gap=10s，角度 40/50/60
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(base, 40, 10)))
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(base+10000, 50, 10)))
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(base+20000, 60, 10)))

	buckets, err := store.GetTodayHourly(ctx, "user-1", dayStart.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, base, buckets[0].HourStart)
	assert.Equal(t, 30.0, buckets[0].Weight)
	assert.Equal(t, 1500.0, buckets[0].SumWeighted)
	assert.Nil(t, buckets[0].AvgAngle)
	assert.False(t, buckets[0].Finalized)

	// 小时结束后结算：avg = 1500/30 = 50
	updated, err := store.FinalizeUpToNow(ctx, "user-1", dayStart.Add(time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	buckets, err = store.GetTodayHourly(ctx, "user-1", dayStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.NotNil(t, buckets[0].AvgAngle)
	assert.InDelta(t, 50.0, *buckets[0].AvgAngle, 1e-9)
	assert.True(t, buckets[0].Finalized)
}

func TestMemoryAggregation_FinalizeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()
	base := dayStart.UnixMilli()

	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(base, 48, 10)))

	now := dayStart.Add(2 * time.Hour)
	_, err := store.FinalizeUpToNow(ctx, "user-1", now, false)
	require.NoError(t, err)

	first, err := store.GetTodayHourly(ctx, "user-1", now)
	require.NoError(t, err)

	// 无新采样时再次结算：累计字段与 avg_angle 完全不变
	updated, err := store.FinalizeUpToNow(ctx, "user-1", now, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	second, err := store.GetTodayHourly(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].SumWeighted, second[0].SumWeighted)
	assert.Equal(t, first[0].Weight, second[0].Weight)
	assert.Equal(t, *first[0].AvgAngle, *second[0].AvgAngle)
}

func TestMemoryAggregation_CurrentHourStaysRefinalizable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()
	base := dayStart.UnixMilli()

	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(base, 40, 10)))

	// 当前小时：仅重算 avg_angle，保持非终态
	now := dayStart.Add(10 * time.Minute)
	updated, err := store.FinalizeUpToNow(ctx, "user-1", now, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	buckets, err := store.GetTodayHourly(ctx, "user-1", now)
	require.NoError(t, err)
	require.NotNil(t, buckets[0].AvgAngle)
	assert.InDelta(t, 40.0, *buckets[0].AvgAngle, 1e-9)
	assert.False(t, buckets[0].Finalized)

	// 非终态桶继续累计
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(base+10000, 60, 10)))
	_, err = store.FinalizeUpToNow(ctx, "user-1", now.Add(time.Minute), true)
	require.NoError(t, err)

	buckets, err = store.GetTodayHourly(ctx, "user-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 20.0, buckets[0].Weight)
	assert.InDelta(t, 50.0, *buckets[0].AvgAngle, 1e-9)
}

func TestMemoryAggregation_WeightedTodayAverage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()

	// 两个小时桶：(w=100, sum=4800) 与 (w=200, sum=9000)
	ts9 := dayStart.Add(9 * time.Hour).UnixMilli()
	ts10 := dayStart.Add(10 * time.Hour).UnixMilli()
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(ts9, 48, 100)))
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, sampleAt(ts10, 45, 200)))

	avg, ok, err := store.ComputeTodaySoFarAverage(ctx, "user-1", dayStart.Add(11*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 46.0, avg, 1e-9)
}

func TestMemoryAggregation_DuplicateSampleNotDoubleCounted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()
	base := dayStart.UnixMilli()

	s := sampleAt(base, 50, 10)
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, s))
	// 重试同一采样
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, s))

	assert.Equal(t, 1, store.SampleCount("user-1"))
	buckets, err := store.GetTodayHourly(ctx, "user-1", dayStart.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 10.0, buckets[0].Weight)
}

func TestMemoryAggregation_WarningCountTracksTurtleEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()
	base := dayStart.UnixMilli()

	// count 按去抖后的"进入"事件计数，不是按乌龟颈采样计数
	enter := sampleAt(base, 40, 10)
	enter.IsTurtle = true
	enter.EnteredTurtle = true
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, enter))

	staying := sampleAt(base+10000, 41, 10)
	staying.IsTurtle = true
	require.NoError(t, store.StoreSampleAndAccumulate(ctx, staying))

	buckets, err := store.GetTodayHourly(ctx, "user-1", dayStart.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, buckets[0].Count)
}

func TestMemoryAggregation_EmptyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAggregationStore()

	// 新用户/新的一天：返回"无数据"而不是错误
	buckets, err := store.GetTodayHourly(ctx, "nobody", dayStart)
	require.NoError(t, err)
	assert.Empty(t, buckets)

	_, ok, err := store.ComputeTodaySoFarAverage(ctx, "nobody", dayStart)
	require.NoError(t, err)
	assert.False(t, ok)

	updated, err := store.FinalizeUpToNow(ctx, "nobody", dayStart, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
}
