package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"neckcare-posture/internal/config"
	"neckcare-posture/internal/models"
	mqttutil "neckcare-posture/internal/mqtt"

	"go.uber.org/zap"
)

// SessionRouter 把解析后的消息交给姿态会话层处理
type SessionRouter interface {
	StartSession(ctx context.Context, userID, sensitivity string) error
	StopSession(ctx context.Context, userID string) error
	HandlePoseFrame(ctx context.Context, userID string, frame *models.PoseFrame) error
}

// MQTTConsumer MQTT消息消费者
// 订阅两类主题：姿态关键点帧（neckcare/pose/<userID>）
// 和测量控制（neckcare/control/<userID>）
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttutil.Client
	router     SessionRouter
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttutil.Client,
	router SessionRouter,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		router:     router,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	poseTopic := c.config.Posture.PoseTopic
	controlTopic := c.config.Posture.ControlTopic
	if poseTopic == "" || controlTopic == "" {
		return fmt.Errorf("posture MQTT topics not configured")
	}

	qos := c.config.MQTT.QoS
	if err := c.mqttClient.Subscribe(poseTopic, qos, c.handlePoseMessage); err != nil {
		return fmt.Errorf("failed to subscribe to pose topic: %w", err)
	}
	if err := c.mqttClient.Subscribe(controlTopic, qos, c.handleControlMessage); err != nil {
		return fmt.Errorf("failed to subscribe to control topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("pose_topic", poseTopic),
		zap.String("control_topic", controlTopic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Posture.PoseTopic, c.config.Posture.ControlTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// userIDFromTopic 从主题最后一段取用户 ID（neckcare/pose/<userID>）
func userIDFromTopic(topic string) (string, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return "", fmt.Errorf("no user id in topic %q", topic)
	}
	return topic[idx+1:], nil
}

// handlePoseMessage 处理姿态关键点帧
func (c *MQTTConsumer) handlePoseMessage(topic string, payload []byte) error {
	userID, err := userIDFromTopic(topic)
	if err != nil {
		c.logger.Warn("Dropping pose message with malformed topic", zap.String("topic", topic))
		return err
	}

	var frame models.PoseFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.logger.Error("Failed to unmarshal pose frame",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal pose frame: %w", err)
	}

	if err := c.router.HandlePoseFrame(context.Background(), userID, &frame); err != nil {
		c.logger.Error("Failed to process pose frame",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// handleControlMessage 处理测量控制消息
func (c *MQTTConsumer) handleControlMessage(topic string, payload []byte) error {
	userID, err := userIDFromTopic(topic)
	if err != nil {
		c.logger.Warn("Dropping control message with malformed topic", zap.String("topic", topic))
		return err
	}

	var msg models.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("Failed to unmarshal control message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal control message: %w", err)
	}

	ctx := context.Background()
	switch msg.Action {
	case "start":
		sensitivity := msg.Sensitivity
		if sensitivity == "" {
			sensitivity = c.config.Posture.DefaultSensitivity
		}
		if err := c.router.StartSession(ctx, userID, sensitivity); err != nil {
			c.logger.Error("Failed to start measurement session",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return err
		}
		c.logger.Info("Measurement session started",
			zap.String("user_id", userID),
			zap.String("sensitivity", sensitivity),
		)
	case "stop":
		if err := c.router.StopSession(ctx, userID); err != nil {
			c.logger.Error("Failed to stop measurement session",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return err
		}
		c.logger.Info("Measurement session stopped", zap.String("user_id", userID))
	default:
		c.logger.Debug("Unhandled control action",
			zap.String("action", msg.Action),
			zap.String("user_id", userID),
		)
	}
	return nil
}
