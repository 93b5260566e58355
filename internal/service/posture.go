package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"neckcare-posture/internal/cache"
	"neckcare-posture/internal/config"
	"neckcare-posture/internal/consumer"
	"neckcare-posture/internal/database"
	mqttutil "neckcare-posture/internal/mqtt"
	redisutil "neckcare-posture/internal/redis"
	"neckcare-posture/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PostureService 姿态检测服务
// 消费 MQTT 姿态帧，维护实时状态缓存，累计小时桶并滚动每日汇总
type PostureService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttutil.Client

	aggStore repository.AggregationStore
	manager  *SessionManager
	consumer *consumer.MQTTConsumer
	summary  *SummaryService
	cloud    *CloudClient
}

// NewPostureService 创建姿态检测服务
func NewPostureService(cfg *config.Config, logger *zap.Logger) (*PostureService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient := redisutil.NewRedisClient(&cfg.Redis)
	if err := redisutil.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	mqttClient, err := mqttutil.NewClient(&cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	kv := cache.NewRedisKVStore(redisClient)
	stateCache := cache.NewPostureCache(cfg, kv, logger)
	warnings := cache.NewRedisWarningPublisher(redisClient, cfg.Posture.WarningStream, logger)

	aggStore := repository.NewPostgresAggregationStore(db, logger)
	dailyStore := repository.NewPostgresDailySummaryStore(db, logger)

	manager := NewSessionManager(cfg, aggStore, stateCache, warnings, logger)
	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, manager, logger)
	summary := NewSummaryService(aggStore, dailyStore, logger)
	cloud := NewCloudClient(cfg.Cloud.BaseURL, cfg.Cloud.APIKey, time.Duration(cfg.Cloud.Timeout)*time.Second, logger)

	return &PostureService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		aggStore:    aggStore,
		manager:     manager,
		consumer:    mqttConsumer,
		summary:     summary,
		cloud:       cloud,
	}, nil
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *PostureService) Start(ctx context.Context) error {
	s.logger.Info("Starting posture service",
		zap.String("pose_topic", s.config.Posture.PoseTopic),
		zap.Int("finalize_interval_min", s.config.Posture.FinalizeInterval),
		zap.Int("summary_interval_min", s.config.Posture.SummaryInterval),
	)

	go s.startFinalizeLoop(ctx)
	go s.startSummaryLoop(ctx)

	// MQTT 消费阻塞直到 ctx 取消
	return s.consumer.Start(ctx)
}

// startFinalizeLoop 周期结算活动用户的小时桶
func (s *PostureService) startFinalizeLoop(ctx context.Context) {
	interval := time.Duration(s.config.Posture.FinalizeInterval) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, userID := range s.manager.ActiveUserIDs() {
				updated, err := s.aggStore.FinalizeUpToNow(ctx, userID, now, true)
				if err != nil {
					s.logger.Error("Failed to finalize hourly buckets",
						zap.String("user_id", userID),
						zap.Error(err),
					)
					continue
				}
				if updated > 0 {
					s.logger.Debug("Finalized hourly buckets",
						zap.String("user_id", userID),
						zap.Int64("updated", updated),
					)
				}
			}
		}
	}
}

// startSummaryLoop 周期滚动每日汇总并上报云端
func (s *PostureService) startSummaryLoop(ctx context.Context) {
	interval := time.Duration(s.config.Posture.SummaryInterval) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, userID := range s.manager.ActiveUserIDs() {
				summary, err := s.summary.RollupDay(ctx, userID, now)
				if err != nil {
					s.logger.Error("Failed to roll up daily summary",
						zap.String("user_id", userID),
						zap.Error(err),
					)
					continue
				}
				if err := s.cloud.SyncDailySummary(ctx, summary); err != nil {
					s.logger.Error("Failed to sync daily summary to cloud",
						zap.String("user_id", userID),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// Stop 停止服务
func (s *PostureService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping posture service")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Error("Error stopping MQTT consumer", zap.Error(err))
	}

	// 先落盘所有会话的尾部采样，再断开连接
	s.manager.CloseAll(ctx)

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := redisutil.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Posture service stopped")
	return nil
}
