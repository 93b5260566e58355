package models

// ControlMessage 测量控制消息（App 经 MQTT 下发）
type ControlMessage struct {
	Action      string `json:"action"`                // "start" / "stop"
	Sensitivity string `json:"sensitivity,omitempty"` // low/normal/high，start 时可选
}
