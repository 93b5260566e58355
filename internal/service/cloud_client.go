package service

import (
	"context"
	"fmt"
	"time"

	"neckcare-posture/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// CloudClient App 后端同步客户端
// 把每日汇总推送到云端，供多设备查看；未配置 BaseURL 时关闭同步
type CloudClient struct {
	httpClient *resty.Client
	enabled    bool
	logger     *zap.Logger
}

// NewCloudClient 创建云端同步客户端
func NewCloudClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *CloudClient {
	if baseURL == "" {
		logger.Info("Cloud sync disabled: no base URL configured")
		return &CloudClient{enabled: false, logger: logger}
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}

	return &CloudClient{
		httpClient: client,
		enabled:    true,
		logger:     logger,
	}
}

// Enabled 是否启用云端同步
func (c *CloudClient) Enabled() bool {
	return c.enabled
}

// SyncDailySummary 上报每日汇总（幂等：云端按 (user_id, date) 覆盖）
func (c *CloudClient) SyncDailySummary(ctx context.Context, summary *models.DailySummary) error {
	if !c.enabled {
		return nil
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(summary).
		Post("/v1/posture/daily")
	if err != nil {
		return fmt.Errorf("failed to call cloud API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("cloud API error: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Debug("Synced daily summary to cloud",
		zap.String("user_id", summary.UserID),
		zap.String("date", summary.Date),
	)
	return nil
}
