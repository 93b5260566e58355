package cache

import (
	"context"
	"fmt"

	"neckcare-posture/internal/models"
	redisutil "neckcare-posture/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// WarningPublisher 乌龟颈告警事件发布接口
type WarningPublisher interface {
	PublishWarning(ctx context.Context, event *models.WarningEvent) error
}

// RedisWarningPublisher 把告警事件写入 Redis Streams，
// 下游的通知服务按消费组读取
type RedisWarningPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewRedisWarningPublisher(client *redis.Client, stream string, logger *zap.Logger) *RedisWarningPublisher {
	return &RedisWarningPublisher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

var _ WarningPublisher = (*RedisWarningPublisher)(nil)

// PublishWarning 发布告警事件
func (p *RedisWarningPublisher) PublishWarning(ctx context.Context, event *models.WarningEvent) error {
	id, err := redisutil.PublishJSONToStream(ctx, p.client, p.stream, event)
	if err != nil {
		return fmt.Errorf("failed to publish warning event: %w", err)
	}

	p.logger.Info("Published turtle-neck warning",
		zap.String("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.Float64("avg_angle", event.AvgAngle),
		zap.String("stream_id", id),
	)
	return nil
}
