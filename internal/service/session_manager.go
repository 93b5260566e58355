package service

import (
	"context"
	"sync"
	"time"

	"neckcare-posture/internal/cache"
	"neckcare-posture/internal/config"
	"neckcare-posture/internal/models"
	"neckcare-posture/internal/posture"
	"neckcare-posture/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionManager 按用户管理测量会话
// 每个用户同时最多一个活动会话；重复 start 会关闭旧会话并
// 用全新的状态机实例开始新会话
type SessionManager struct {
	config     *config.Config
	aggStore   repository.AggregationStore
	stateCache StateCache
	warnings   cache.WarningPublisher
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*MeasurementSession
}

// NewSessionManager 创建会话管理器
func NewSessionManager(
	cfg *config.Config,
	aggStore repository.AggregationStore,
	stateCache StateCache,
	warnings cache.WarningPublisher,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		config:     cfg,
		aggStore:   aggStore,
		stateCache: stateCache,
		warnings:   warnings,
		logger:     logger,
		sessions:   make(map[string]*MeasurementSession),
	}
}

// StartSession 开始用户的测量会话
func (m *SessionManager) StartSession(ctx context.Context, userID, sensitivity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[userID]; ok {
		if err := old.Close(ctx, time.Now()); err != nil {
			m.logger.Error("Failed to close previous session",
				zap.String("user_id", userID),
				zap.String("session_id", old.SessionID()),
				zap.Error(err),
			)
		}
	}

	sessionID := uuid.NewString()
	session := NewMeasurementSession(
		userID,
		sessionID,
		posture.ParseSensitivity(sensitivity),
		m.config.Posture.ReferenceShoulderPx,
		time.Duration(m.config.Posture.SampleInterval)*time.Second,
		m.aggStore,
		m.stateCache,
		m.warnings,
		m.logger,
	)
	m.sessions[userID] = session

	m.logger.Info("Created measurement session",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("sensitivity", string(posture.ParseSensitivity(sensitivity))),
	)
	return nil
}

// StopSession 结束用户的测量会话
// 没有活动会话时为空操作
func (m *SessionManager) StopSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	session, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("Stop for user without active session", zap.String("user_id", userID))
		return nil
	}
	return session.Close(ctx, time.Now())
}

// HandlePoseFrame 把姿态帧路由到用户的活动会话
// 没有活动会话的帧直接丢弃（App 端先 start 再推流）
func (m *SessionManager) HandlePoseFrame(ctx context.Context, userID string, frame *models.PoseFrame) error {
	m.mu.Lock()
	session, ok := m.sessions[userID]
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("Dropping pose frame without active session", zap.String("user_id", userID))
		return nil
	}
	return session.HandleFrame(ctx, frame, time.Now())
}

// ActiveUserIDs 当前有活动会话的用户列表
func (m *SessionManager) ActiveUserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll 关闭所有活动会话（服务停机时调用）
func (m *SessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*MeasurementSession)
	m.mu.Unlock()

	now := time.Now()
	for userID, session := range sessions {
		if err := session.Close(ctx, now); err != nil {
			m.logger.Error("Failed to close session on shutdown",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}
