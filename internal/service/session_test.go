package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"neckcare-posture/internal/models"
	"neckcare-posture/internal/posture"
	"neckcare-posture/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testRefShoulderPx = 280

var sessionStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeStateCache 记录写入的实时状态
type fakeStateCache struct {
	mu     sync.Mutex
	states []*models.RealtimeState
}

func (f *fakeStateCache) UpdateRealtimeState(ctx context.Context, state *models.RealtimeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *state
	f.states = append(f.states, &copied)
	return nil
}

func (f *fakeStateCache) last() *models.RealtimeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return nil
	}
	return f.states[len(f.states)-1]
}

// fakeWarningPublisher 记录发布的告警事件
type fakeWarningPublisher struct {
	mu     sync.Mutex
	events []*models.WarningEvent
}

func (f *fakeWarningPublisher) PublishWarning(ctx context.Context, event *models.WarningEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *event
	f.events = append(f.events, &copied)
	return nil
}

func (f *fakeWarningPublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// poseFrame 构造 640x480 画面的 33 关键点帧
func poseFrame(ts int64, earL, earR, shoulderL, shoulderR models.Landmark) *models.PoseFrame {
	landmarks := make([]models.Landmark, 33)
	landmarks[models.LandmarkLeftEar] = earL
	landmarks[models.LandmarkRightEar] = earR
	landmarks[models.LandmarkLeftShoulder] = shoulderL
	landmarks[models.LandmarkRightShoulder] = shoulderR
	return &models.PoseFrame{Ts: ts, FrameW: 640, FrameH: 480, Landmarks: landmarks}
}

// neutralFrame 标定姿势：关键点在引导框内，原始角度恰好 45°
func neutralFrame(ts int64) *models.PoseFrame {
	return poseFrame(ts,
		models.Landmark{X: 0.45, Y: 0.30, Z: -0.30},
		models.Landmark{X: 0.55, Y: 0.30, Z: -0.30},
		models.Landmark{X: 0.30, Y: 0.60, Z: 0},
		models.Landmark{X: 0.70, Y: 0.60, Z: 0},
	)
}

// slouchFrame 前倾姿势：头部前移，原始角度约 30.96°
func slouchFrame(ts int64) *models.PoseFrame {
	return poseFrame(ts,
		models.Landmark{X: 0.45, Y: 0.30, Z: -0.50},
		models.Landmark{X: 0.55, Y: 0.30, Z: -0.50},
		models.Landmark{X: 0.30, Y: 0.60, Z: 0},
		models.Landmark{X: 0.70, Y: 0.60, Z: 0},
	)
}

func emptyFrame(ts int64) *models.PoseFrame {
	return &models.PoseFrame{Ts: ts, FrameW: 640, FrameH: 480}
}

func newTestSession(store repository.AggregationStore, cacheSink StateCache, warnings *fakeWarningPublisher) *MeasurementSession {
	return NewMeasurementSession(
		"user-1", "session-1",
		posture.SensitivityNormal,
		testRefShoulderPx,
		10*time.Second,
		store, cacheSink, warnings,
		zap.NewNop(),
	)
}

// calibrate 喂入标定帧直到完成，返回标定结束时刻
func calibrate(t *testing.T, s *MeasurementSession) time.Time {
	t.Helper()
	ctx := context.Background()
	for _, offset := range []time.Duration{0, time.Second, 2 * time.Second, 2900 * time.Millisecond, 3 * time.Second} {
		now := sessionStart.Add(offset)
		require.NoError(t, s.HandleFrame(ctx, neutralFrame(now.UnixMilli()), now))
	}
	return sessionStart.Add(3 * time.Second)
}

func TestSession_CalibrationFlow(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAggregationStore()
	cacheSink := &fakeStateCache{}
	warnings := &fakeWarningPublisher{}
	s := newTestSession(store, cacheSink, warnings)

	// 第一帧就满足引导条件：直接进入倒计时
	now := sessionStart
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(now.UnixMilli()), now))
	state := cacheSink.last()
	assert.Equal(t, "holding_countdown", state.CalibrationState)
	require.NotNil(t, state.CountdownRemain)
	assert.Equal(t, 3, *state.CountdownRemain)

	// 保持 3 秒后完成标定
	for _, offset := range []time.Duration{time.Second, 2 * time.Second, 2900 * time.Millisecond, 3 * time.Second} {
		now = sessionStart.Add(offset)
		require.NoError(t, s.HandleFrame(ctx, neutralFrame(now.UnixMilli()), now))
	}
	state = cacheSink.last()
	assert.Equal(t, "calibrated", state.CalibrationState)
	assert.Nil(t, state.CountdownRemain)

	// 标定期间不产生采样和告警
	assert.Equal(t, 0, store.SampleCount("user-1"))
	assert.Equal(t, 0, warnings.count())
}

func TestSession_CalibrationAbortOnPoseLoss(t *testing.T) {
	ctx := context.Background()
	cacheSink := &fakeStateCache{}
	s := newTestSession(repository.NewMemoryAggregationStore(), cacheSink, &fakeWarningPublisher{})

	now := sessionStart
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(now.UnixMilli()), now))

	// 倒计时中途丢失人体：回到引导态
	now = sessionStart.Add(1500 * time.Millisecond)
	require.NoError(t, s.HandleFrame(ctx, emptyFrame(now.UnixMilli()), now))
	state := cacheSink.last()
	assert.Equal(t, "guiding", state.CalibrationState)
	assert.Equal(t, "move_into_guide", state.Hint)
	assert.False(t, state.HasPose)
}

func TestSession_MeasurementAndWarning(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAggregationStore()
	cacheSink := &fakeStateCache{}
	warnings := &fakeWarningPublisher{}
	s := newTestSession(store, cacheSink, warnings)
	calibEnd := calibrate(t, s)

	// 中立姿势：窗口结算后角度修正到基准 55°
	m0 := calibEnd.Add(time.Second)
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(m0.UnixMilli()), m0))
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(m0.Add(time.Second).UnixMilli()), m0.Add(time.Second)))

	state := cacheSink.last()
	require.NotNil(t, state.AngleDeg)
	assert.InDelta(t, 55.0, *state.AngleDeg, 1e-9)
	assert.False(t, state.IsTurtle)
	assert.Equal(t, 0, warnings.count())

	// 前倾姿势：修正后约 37.8°，低于进入阈值 48 → 告警一次
	now := m0.Add(2 * time.Second)
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(now.UnixMilli()), now))

	state = cacheSink.last()
	assert.True(t, state.IsTurtle)
	require.Equal(t, 1, warnings.count())
	assert.Equal(t, "user-1", warnings.events[0].UserID)
	assert.InDelta(t, 30.9637565321/45.0*55.0, warnings.events[0].AvgAngle, 1e-6)

	// 持续前倾不重复告警
	now = m0.Add(3 * time.Second)
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(now.UnixMilli()), now))
	assert.Equal(t, 1, warnings.count())
}

func TestSession_SamplePersistence(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAggregationStore()
	warnings := &fakeWarningPublisher{}
	s := newTestSession(store, &fakeStateCache{}, warnings)
	calibEnd := calibrate(t, s)

	m0 := calibEnd.Add(time.Second)
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(m0.UnixMilli()), m0))
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(m0.Add(time.Second).UnixMilli()), m0.Add(time.Second)))
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(m0.Add(2*time.Second).UnixMilli()), m0.Add(2*time.Second)))
	assert.Equal(t, 0, store.SampleCount("user-1"))

	// 采样间隔（10 秒）到期后落盘，覆盖真实间隔并携带进入事件
	now := m0.Add(10 * time.Second)
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(now.UnixMilli()), now))
	assert.Equal(t, 1, store.SampleCount("user-1"))

	buckets, err := store.GetTodayHourly(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.InDelta(t, 10.0, buckets[0].Weight, 1e-9)
	assert.Equal(t, 1, buckets[0].Count)
}

func TestSession_PoseLossClosesTurtleInterval(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAggregationStore()
	cacheSink := &fakeStateCache{}
	warnings := &fakeWarningPublisher{}
	s := newTestSession(store, cacheSink, warnings)
	calibEnd := calibrate(t, s)

	// 进入乌龟颈
	m0 := calibEnd.Add(time.Second)
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(m0.UnixMilli()), m0))
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(m0.Add(time.Second).UnixMilli()), m0.Add(time.Second)))
	require.Equal(t, 1, warnings.count())

	// 人体丢失：关闭乌龟颈区间
	now := m0.Add(2 * time.Second)
	require.NoError(t, s.HandleFrame(ctx, emptyFrame(now.UnixMilli()), now))
	state := cacheSink.last()
	assert.False(t, state.HasPose)
	assert.False(t, state.IsTurtle)
	assert.Equal(t, "calibrated", state.CalibrationState)

	// 回到画面后再次进入：算新的告警
	now = m0.Add(3 * time.Second)
	require.NoError(t, s.HandleFrame(ctx, slouchFrame(now.UnixMilli()), now))
	assert.Equal(t, 2, warnings.count())
}

func TestSession_CloseFlushesPartialSample(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAggregationStore()
	s := newTestSession(store, &fakeStateCache{}, &fakeWarningPublisher{})
	calibEnd := calibrate(t, s)

	m0 := calibEnd.Add(time.Second)
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(m0.UnixMilli()), m0))
	require.NoError(t, s.HandleFrame(ctx, neutralFrame(m0.Add(time.Second).UnixMilli()), m0.Add(time.Second)))

	// 间隔未满也要把尾部时间落盘
	require.NoError(t, s.Close(ctx, m0.Add(4*time.Second)))
	assert.Equal(t, 1, store.SampleCount("user-1"))

	buckets, err := store.GetTodayHourly(ctx, "user-1", m0.Add(4*time.Second))
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.InDelta(t, 4.0, buckets[0].Weight, 1e-9)
	assert.False(t, buckets[0].Finalized)
}

func TestSession_DegenerateFrameDropped(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAggregationStore()
	cacheSink := &fakeStateCache{}
	s := newTestSession(store, cacheSink, &fakeWarningPublisher{})
	calibrate(t, s)

	// 双肩重合：几何退化，丢帧且不写缓存
	before := len(cacheSink.states)
	now := sessionStart.Add(5 * time.Second)
	frame := poseFrame(now.UnixMilli(),
		models.Landmark{X: 0.45, Y: 0.30, Z: -0.30},
		models.Landmark{X: 0.55, Y: 0.30, Z: -0.30},
		models.Landmark{X: 0.50, Y: 0.60, Z: 0},
		models.Landmark{X: 0.50, Y: 0.60, Z: 0},
	)
	require.NoError(t, s.HandleFrame(ctx, frame, now))
	assert.Equal(t, before, len(cacheSink.states))
}
