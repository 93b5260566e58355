package models

// GoodDayMaxWarnings "好日子"判定的当日告警次数上限
// 告警次数按去抖后的乌龟颈状态"进入"事件计数，不是按原始采样计数
const GoodDayMaxWarnings = 10

// Sample 单次姿态采样（仅追加，由 AggregationStore 独占持有）
type Sample struct {
	UserID        string  `json:"user_id"`
	Ts            int64   `json:"ts"` // epoch 毫秒
	AngleDeg      float64 `json:"angle_deg"`
	IsTurtle      bool    `json:"is_turtle"`
	HasPose       bool    `json:"has_pose"`
	SessionID     string  `json:"session_id,omitempty"`
	SampleGapS    float64 `json:"sample_gap_s,omitempty"` // 本次采样覆盖的秒数
	EnteredTurtle bool    `json:"entered_turtle"`         // 本采样间隔内是否发生乌龟颈"进入"事件
}

// HourlyBucket 小时桶累计
// 不变量：finalized=false 时 weight 只增不减；finalized=true 后累计字段不可变，
// 仅当前小时桶允许反复重算 avg_angle（重算不改变 sum_weighted/weight）
type HourlyBucket struct {
	UserID      string   `json:"user_id"`
	HourStart   int64    `json:"hour_start"` // epoch 毫秒，整点
	SumWeighted float64  `json:"sum_weighted"`
	Weight      float64  `json:"weight"` // 覆盖的总秒数
	Count       int      `json:"count"`  // 乌龟颈进入事件数（告警次数）
	AvgAngle    *float64 `json:"avg_angle"` // 结算前为 nil
	Finalized   bool     `json:"finalized"`
}

// DailySummary 每日汇总（按 (user_id, date) 唯一）
type DailySummary struct {
	UserID        string   `json:"user_id"`
	Date          string   `json:"date"` // "YYYY-MM-DD"
	SumWeighted   float64  `json:"sum_weighted"`
	WeightSeconds float64  `json:"weight_seconds"`
	Count         int      `json:"count"`
	AvgAngle      *float64 `json:"avg_angle"`
	GoodDay       int      `json:"good_day"` // 单调累计："好日子"总数
}

// WarningEvent 乌龟颈告警事件（发布到 Redis Streams）
type WarningEvent struct {
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
	Ts        int64   `json:"ts"` // epoch 毫秒
	AvgAngle  float64 `json:"avg_angle"`
}

// RealtimeState 实时姿态状态（写入 Redis 缓存，供 UI 轮询）
type RealtimeState struct {
	UserID           string   `json:"user_id"`
	SessionID        string   `json:"session_id"`
	Ts               int64    `json:"ts"` // epoch 毫秒
	HasPose          bool     `json:"has_pose"`
	CalibrationState string   `json:"calibration_state"`
	Hint             string   `json:"hint,omitempty"`
	CountdownRemain  *int     `json:"countdown_remain,omitempty"` // 秒，无倒计时为 nil
	AngleDeg         *float64 `json:"angle_deg,omitempty"`        // 最近一次窗口均值（校正后）
	IsTurtle         bool     `json:"is_turtle"`
}
