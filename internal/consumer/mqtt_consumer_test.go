package consumer

import (
	"context"
	"testing"

	"neckcare-posture/internal/config"
	"neckcare-posture/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRouter struct {
	started     []string
	sensitivity string
	stopped     []string
	frames      map[string][]*models.PoseFrame
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{frames: make(map[string][]*models.PoseFrame)}
}

func (f *fakeRouter) StartSession(ctx context.Context, userID, sensitivity string) error {
	f.started = append(f.started, userID)
	f.sensitivity = sensitivity
	return nil
}

func (f *fakeRouter) StopSession(ctx context.Context, userID string) error {
	f.stopped = append(f.stopped, userID)
	return nil
}

func (f *fakeRouter) HandlePoseFrame(ctx context.Context, userID string, frame *models.PoseFrame) error {
	f.frames[userID] = append(f.frames[userID], frame)
	return nil
}

func newTestConsumer(router SessionRouter) *MQTTConsumer {
	cfg := &config.Config{}
	cfg.Posture.PoseTopic = "neckcare/pose/+"
	cfg.Posture.ControlTopic = "neckcare/control/+"
	cfg.Posture.DefaultSensitivity = "normal"
	return NewMQTTConsumer(cfg, nil, router, zap.NewNop())
}

func TestUserIDFromTopic(t *testing.T) {
	userID, err := userIDFromTopic("neckcare/pose/user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	_, err = userIDFromTopic("neckcare/pose/")
	assert.Error(t, err)

	_, err = userIDFromTopic("bare")
	assert.Error(t, err)
}

func TestHandlePoseMessage(t *testing.T) {
	router := newFakeRouter()
	c := newTestConsumer(router)

	payload := []byte(`{"ts":1748768400000,"frame_w":640,"frame_h":480,"landmarks":[{"x":0.5,"y":0.3,"z":-0.2}]}`)
	require.NoError(t, c.handlePoseMessage("neckcare/pose/user-1", payload))

	require.Len(t, router.frames["user-1"], 1)
	assert.Equal(t, int64(1748768400000), router.frames["user-1"][0].Ts)
	assert.Equal(t, 640, router.frames["user-1"][0].FrameW)
}

func TestHandlePoseMessage_BadPayload(t *testing.T) {
	router := newFakeRouter()
	c := newTestConsumer(router)

	err := c.handlePoseMessage("neckcare/pose/user-1", []byte("{not json"))
	assert.Error(t, err)
	assert.Empty(t, router.frames["user-1"])
}

func TestHandleControlMessage_StartStop(t *testing.T) {
	router := newFakeRouter()
	c := newTestConsumer(router)

	require.NoError(t, c.handleControlMessage("neckcare/control/user-1", []byte(`{"action":"start","sensitivity":"high"}`)))
	assert.Equal(t, []string{"user-1"}, router.started)
	assert.Equal(t, "high", router.sensitivity)

	require.NoError(t, c.handleControlMessage("neckcare/control/user-1", []byte(`{"action":"stop"}`)))
	assert.Equal(t, []string{"user-1"}, router.stopped)
}

func TestHandleControlMessage_DefaultSensitivity(t *testing.T) {
	router := newFakeRouter()
	c := newTestConsumer(router)

	require.NoError(t, c.handleControlMessage("neckcare/control/user-2", []byte(`{"action":"start"}`)))
	assert.Equal(t, "normal", router.sensitivity)
}

func TestHandleControlMessage_UnknownActionIgnored(t *testing.T) {
	router := newFakeRouter()
	c := newTestConsumer(router)

	require.NoError(t, c.handleControlMessage("neckcare/control/user-1", []byte(`{"action":"pause"}`)))
	assert.Empty(t, router.started)
	assert.Empty(t, router.stopped)
}
