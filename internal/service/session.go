package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"neckcare-posture/internal/cache"
	"neckcare-posture/internal/models"
	"neckcare-posture/internal/posture"
	"neckcare-posture/internal/repository"

	"go.uber.org/zap"
)

// StateCache 实时状态缓存写入接口
type StateCache interface {
	UpdateRealtimeState(ctx context.Context, state *models.RealtimeState) error
}

// MeasurementSession 单用户测量会话
// 持有会话级可变状态（标定状态机、去抖器、采样累计），
// 由 SessionManager 创建和销毁，跨会话不可复用
type MeasurementSession struct {
	userID         string
	sessionID      string
	sampleInterval time.Duration

	guide      *posture.CalibrationGuide
	stabilizer *posture.Stabilizer

	aggStore   repository.AggregationStore
	stateCache StateCache
	warnings   cache.WarningPublisher
	logger     *zap.Logger

	mu             sync.Mutex
	lastAvg        *float64 // 最近一次窗口均值（修正后）
	pendingEntered bool     // 自上次落盘以来是否发生乌龟颈进入事件
	lastSampleAt   time.Time
}

// NewMeasurementSession 创建测量会话
func NewMeasurementSession(
	userID string,
	sessionID string,
	sensitivity posture.Sensitivity,
	refShoulderPx float64,
	sampleInterval time.Duration,
	aggStore repository.AggregationStore,
	stateCache StateCache,
	warnings cache.WarningPublisher,
	logger *zap.Logger,
) *MeasurementSession {
	return &MeasurementSession{
		userID:         userID,
		sessionID:      sessionID,
		sampleInterval: sampleInterval,
		guide:          posture.NewCalibrationGuide(refShoulderPx),
		stabilizer:     posture.NewStabilizer(sensitivity),
		aggStore:       aggStore,
		stateCache:     stateCache,
		warnings:       warnings,
		logger:         logger,
	}
}

// SessionID 会话标识
func (s *MeasurementSession) SessionID() string {
	return s.sessionID
}

// HandleFrame 处理一帧姿态推理结果
// 标定完成前驱动引导状态机，完成后走角度估计→去抖→采样落盘链路；
// 每帧都会刷新实时状态缓存
func (s *MeasurementSession) HandleFrame(ctx context.Context, frame *models.PoseFrame, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.guide.Calibrated() {
		return s.handleCalibrationFrame(ctx, frame, now)
	}
	return s.handleMeasurementFrame(ctx, frame, now)
}

func (s *MeasurementSession) handleCalibrationFrame(ctx context.Context, frame *models.PoseFrame, now time.Time) error {
	status := s.guide.ProcessFrame(frame, now)

	if status.State == posture.StateCalibrated {
		s.logger.Info("Calibration completed",
			zap.String("user_id", s.userID),
			zap.String("session_id", s.sessionID),
			zap.Float64("baseline_angle", s.guide.BaselineAngle()),
		)
	}

	state := &models.RealtimeState{
		UserID:           s.userID,
		SessionID:        s.sessionID,
		Ts:               frame.Ts,
		HasPose:          frame.HasPose(),
		CalibrationState: string(status.State),
		Hint:             string(status.Hint),
		CountdownRemain:  status.CountdownRemain,
	}
	return s.writeState(ctx, state)
}

func (s *MeasurementSession) handleMeasurementFrame(ctx context.Context, frame *models.PoseFrame, now time.Time) error {
	earL, earR, shoulderL, shoulderR, ok := frame.KeyLandmarks()
	if !ok {
		// 人体丢失：关闭当前乌龟颈区间，暂停时间累计
		s.stabilizer.Reset()
		s.lastAvg = nil
		s.lastSampleAt = time.Time{}

		state := &models.RealtimeState{
			UserID:           s.userID,
			SessionID:        s.sessionID,
			Ts:               frame.Ts,
			HasPose:          false,
			CalibrationState: string(posture.StateCalibrated),
		}
		return s.writeState(ctx, state)
	}

	raw, err := posture.Estimate(earL, earR, shoulderL, shoulderR)
	if err != nil {
		if errors.Is(err, posture.ErrDegenerateInput) {
			// 几何退化帧直接丢弃，不影响会话状态
			s.logger.Debug("Dropping degenerate pose frame",
				zap.String("user_id", s.userID),
				zap.Int64("ts", frame.Ts),
			)
			return nil
		}
		return err
	}

	corrected := s.guide.Correct(raw)
	if flush := s.stabilizer.Push(corrected, now); flush != nil {
		avg := flush.AvgAngle
		s.lastAvg = &avg
		if flush.Entered {
			s.pendingEntered = true
			event := &models.WarningEvent{
				UserID:    s.userID,
				SessionID: s.sessionID,
				Ts:        frame.Ts,
				AvgAngle:  flush.AvgAngle,
			}
			if err := s.warnings.PublishWarning(ctx, event); err != nil {
				// 告警发布失败不阻断帧处理
				s.logger.Error("Failed to publish warning event",
					zap.String("user_id", s.userID),
					zap.Error(err),
				)
			}
		}
	}

	state := &models.RealtimeState{
		UserID:           s.userID,
		SessionID:        s.sessionID,
		Ts:               frame.Ts,
		HasPose:          true,
		CalibrationState: string(posture.StateCalibrated),
		AngleDeg:         s.lastAvg,
		IsTurtle:         s.stabilizer.IsTurtle(),
	}
	if err := s.writeState(ctx, state); err != nil {
		return err
	}

	return s.maybePersistSample(ctx, frame.Ts, now)
}

// maybePersistSample 采样间隔到期时把当前状态落盘
// 采样覆盖的秒数取真实间隔，而不是固定常量
func (s *MeasurementSession) maybePersistSample(ctx context.Context, frameTs int64, now time.Time) error {
	if s.lastSampleAt.IsZero() {
		s.lastSampleAt = now
		return nil
	}

	elapsed := now.Sub(s.lastSampleAt)
	if elapsed < s.sampleInterval || s.lastAvg == nil {
		return nil
	}

	sample := &models.Sample{
		UserID:        s.userID,
		Ts:            frameTs,
		AngleDeg:      *s.lastAvg,
		IsTurtle:      s.stabilizer.IsTurtle(),
		HasPose:       true,
		SessionID:     s.sessionID,
		SampleGapS:    elapsed.Seconds(),
		EnteredTurtle: s.pendingEntered,
	}
	if err := s.aggStore.StoreSampleAndAccumulate(ctx, sample); err != nil {
		return err
	}
	s.pendingEntered = false
	s.lastSampleAt = now
	return nil
}

// Close 结束会话：把最后一段不完整间隔落盘
// 小时桶保持非终态，由结算任务在整点后收尾
func (s *MeasurementSession) Close(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSampleAt.IsZero() || s.lastAvg == nil {
		return nil
	}
	elapsed := now.Sub(s.lastSampleAt)
	if elapsed <= 0 {
		return nil
	}

	sample := &models.Sample{
		UserID:        s.userID,
		Ts:            now.UnixMilli(),
		AngleDeg:      *s.lastAvg,
		IsTurtle:      s.stabilizer.IsTurtle(),
		HasPose:       true,
		SessionID:     s.sessionID,
		SampleGapS:    elapsed.Seconds(),
		EnteredTurtle: s.pendingEntered,
	}
	if err := s.aggStore.StoreSampleAndAccumulate(ctx, sample); err != nil {
		return err
	}
	s.pendingEntered = false
	return nil
}

func (s *MeasurementSession) writeState(ctx context.Context, state *models.RealtimeState) error {
	if err := s.stateCache.UpdateRealtimeState(ctx, state); err != nil {
		// 缓存只影响 UI 展示，不阻断管线
		s.logger.Error("Failed to update realtime state cache",
			zap.String("user_id", s.userID),
			zap.Error(err),
		)
	}
	return nil
}
