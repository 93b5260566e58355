package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"neckcare-posture/internal/config"
	"neckcare-posture/internal/models"

	"go.uber.org/zap"
)

// PostureCache 实时姿态状态缓存管理器
// 每帧处理后把最新状态写入 Redis，UI 端轮询读取；
// TTL 过期即视为测量中断
type PostureCache struct {
	config *config.Config
	kv     KVStore
	logger *zap.Logger
}

// NewPostureCache 创建实时状态缓存管理器
func NewPostureCache(
	cfg *config.Config,
	kv KVStore,
	logger *zap.Logger,
) *PostureCache {
	return &PostureCache{
		config: cfg,
		kv:     kv,
		logger: logger,
	}
}

func (c *PostureCache) realtimeKey(userID string) string {
	return fmt.Sprintf("%s%s%s", c.config.Posture.RealtimeKeyPrefix, userID, c.config.Posture.RealtimeSuffix)
}

// UpdateRealtimeState 更新实时姿态状态缓存
func (c *PostureCache) UpdateRealtimeState(ctx context.Context, state *models.RealtimeState) error {
	key := c.realtimeKey(state.UserID)

	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime state: %w", err)
	}

	ttl := time.Duration(c.config.Posture.RealtimeTTL) * time.Second
	err = c.kv.Set(ctx, key, string(jsonData), ttl)
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated realtime posture state",
		zap.String("user_id", state.UserID),
		zap.String("calibration_state", state.CalibrationState),
		zap.Bool("is_turtle", state.IsTurtle),
	)

	return nil
}

// GetRealtimeState 读取实时姿态状态；缓存不存在时返回 (nil, nil)
func (c *PostureCache) GetRealtimeState(ctx context.Context, userID string) (*models.RealtimeState, error) {
	val, err := c.kv.Get(ctx, c.realtimeKey(userID))
	if err != nil {
		if err == ErrCacheMiss {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var state models.RealtimeState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal realtime state: %w", err)
	}
	return &state, nil
}
