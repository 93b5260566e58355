package posture

import (
	"math"
	"time"

	"neckcare-posture/internal/models"
)

// 标定流程常量
const (
	// HoldDuration 进入引导框后的保持倒计时时长
	HoldDuration = 3000 * time.Millisecond
	// baselineWindow 倒计时最后一段，缓冲关键点用于基线计算
	baselineWindow = 200 * time.Millisecond
	// TargetBaselineDeg 标定后的基准中立角度
	TargetBaselineDeg = 55.0
	// 距离比例（实测双肩像素宽 / 基准宽）允许区间
	DistanceRatioMin = 0.7
	DistanceRatioMax = 1.05
)

// State 标定状态机状态
type State string

const (
	StateIdle             State = "idle"
	StateGuiding          State = "guiding"
	StateHoldingCountdown State = "holding_countdown"
	StateCalibrated       State = "calibrated"
)

// Hint 引导提示（UI 方向性提示）
type Hint string

const (
	HintNone          Hint = ""
	HintTooClose      Hint = "too_close"
	HintTooFar        Hint = "too_far"
	HintMoveIntoGuide Hint = "move_into_guide"
)

// Status 每帧标定状态输出
type Status struct {
	State           State
	Hint            Hint
	CountdownRemain *int // 剩余秒数，无倒计时为 nil
	DistanceRatio   float64
}

// guideGeometry 引导框几何：脸部椭圆 + 肩部矩形带
// 以画面中心为基准加竖直偏移，按画面尺寸等比缩放
type guideGeometry struct {
	faceCX, faceCY float64 // 椭圆中心
	faceRX, faceRY float64 // 椭圆半轴
	bandX0, bandX1 float64 // 肩带横向范围
	bandY0, bandY1 float64 // 肩带纵向范围
}

func geometryFor(w, h float64) guideGeometry {
	cx := w / 2
	return guideGeometry{
		faceCX: cx,
		faceCY: h/2 - 0.18*h,
		faceRX: 0.16 * w,
		faceRY: 0.22 * h,
		bandX0: cx - 0.28*w,
		bandX1: cx + 0.28*w,
		bandY0: 0.55 * h,
		bandY1: 0.80 * h,
	}
}

func (g guideGeometry) inFaceEllipse(px, py float64) bool {
	dx := (px - g.faceCX) / g.faceRX
	dy := (py - g.faceCY) / g.faceRY
	return dx*dx+dy*dy <= 1
}

func (g guideGeometry) inShoulderBand(px, py float64) bool {
	return px >= g.bandX0 && px <= g.bandX1 && py >= g.bandY0 && py <= g.bandY1
}

// keyLandmarkSet 一帧缓冲的四个关键点（左耳、右耳、左肩、右肩）
type keyLandmarkSet [4]models.Landmark

// CalibrationGuide 测量前标定状态机
// Idle → Guiding → HoldingCountdown → Calibrated
//
// 逐帧检查四个关键点是否落在引导框内、相机距离是否合适；
// 全部满足后保持 3 秒完成标定，并计算会话级基线角度修正。
// 持有会话级状态，跨会话必须重新创建实例
type CalibrationGuide struct {
	refShoulderPx  float64
	state          State
	countdownStart time.Time // zero = 无倒计时
	holdBuf        []keyLandmarkSet
	baseline       float64 // 0 = 未标定（修正为空操作）
}

// NewCalibrationGuide 创建标定状态机
// refShoulderPx 为"正确距离"下的基准双肩像素宽度（经验常量）
func NewCalibrationGuide(refShoulderPx float64) *CalibrationGuide {
	return &CalibrationGuide{
		refShoulderPx: refShoulderPx,
		state:         StateIdle,
	}
}

// ProcessFrame 处理一帧姿态结果，驱动状态机
// 人体丢失或离开引导框会立即重置进行中的倒计时，不产生错误
func (g *CalibrationGuide) ProcessFrame(frame *models.PoseFrame, now time.Time) Status {
	if g.state == StateCalibrated {
		return Status{State: StateCalibrated}
	}

	earL, earR, shoulderL, shoulderR, ok := frame.KeyLandmarks()
	if !ok || frame.FrameW <= 0 || frame.FrameH <= 0 {
		g.resetCountdown()
		return Status{State: StateGuiding, Hint: HintMoveIntoGuide}
	}

	w, h := float64(frame.FrameW), float64(frame.FrameH)
	geo := geometryFor(w, h)

	// 距离检查：双肩像素宽 vs 基准宽
	shoulderPx := math.Hypot((shoulderR.X-shoulderL.X)*w, (shoulderR.Y-shoulderL.Y)*h)
	ratio := shoulderPx / g.refShoulderPx

	if ratio >= DistanceRatioMax {
		g.resetCountdown()
		return Status{State: StateGuiding, Hint: HintTooClose, DistanceRatio: ratio}
	}
	if ratio <= DistanceRatioMin {
		g.resetCountdown()
		return Status{State: StateGuiding, Hint: HintTooFar, DistanceRatio: ratio}
	}

	// 引导框检查：双耳在脸部椭圆内，双肩在肩带内
	inside := geo.inFaceEllipse(earL.X*w, earL.Y*h) &&
		geo.inFaceEllipse(earR.X*w, earR.Y*h) &&
		geo.inShoulderBand(shoulderL.X*w, shoulderL.Y*h) &&
		geo.inShoulderBand(shoulderR.X*w, shoulderR.Y*h)
	if !inside {
		g.resetCountdown()
		return Status{State: StateGuiding, Hint: HintMoveIntoGuide, DistanceRatio: ratio}
	}

	// 全部满足：启动/推进倒计时
	if g.countdownStart.IsZero() {
		g.countdownStart = now
		g.holdBuf = nil
		g.state = StateHoldingCountdown
	}

	elapsed := now.Sub(g.countdownStart)
	if elapsed >= HoldDuration {
		g.finishCalibration()
		return Status{State: StateCalibrated, DistanceRatio: ratio}
	}

	// 倒计时最后一段缓冲关键点，用于基线计算
	if HoldDuration-elapsed <= baselineWindow {
		g.holdBuf = append(g.holdBuf, keyLandmarkSet{earL, earR, shoulderL, shoulderR})
	}

	remain := int(math.Ceil(float64(HoldDuration-elapsed) / float64(time.Second)))
	return Status{State: StateHoldingCountdown, CountdownRemain: &remain, DistanceRatio: ratio}
}

func (g *CalibrationGuide) resetCountdown() {
	g.countdownStart = time.Time{}
	g.holdBuf = nil
	g.state = StateGuiding
}

// finishCalibration 计算会话基线角度
// 缓冲为空（倒计时边界上恰好丢失姿态）则跳过基线计算，按未标定继续
func (g *CalibrationGuide) finishCalibration() {
	g.state = StateCalibrated

	if len(g.holdBuf) == 0 {
		return
	}

	// 关键点按角色分量平均后再计算角度
	var avg keyLandmarkSet
	n := float64(len(g.holdBuf))
	for _, set := range g.holdBuf {
		for i, l := range set {
			avg[i].X += l.X / n
			avg[i].Y += l.Y / n
			avg[i].Z += l.Z / n
		}
	}
	g.holdBuf = nil

	angle, err := Estimate(avg[0], avg[1], avg[2], avg[3])
	if err != nil {
		// 几何退化，按未标定继续
		return
	}
	g.baseline = angle
}

// Calibrated 是否已完成标定流程
func (g *CalibrationGuide) Calibrated() bool {
	return g.state == StateCalibrated
}

// BaselineAngle 会话基线角度（0 = 未取得基线）
func (g *CalibrationGuide) BaselineAngle() float64 {
	return g.baseline
}

// State 当前状态
func (g *CalibrationGuide) CurrentState() State {
	return g.state
}

// Correct 按会话基线修正原始角度：corrected = raw / baseline * 55
// 补偿用户体型与相机角度差异；基线未取得时原样返回
func (g *CalibrationGuide) Correct(rawAngle float64) float64 {
	if g.baseline == 0 {
		return rawAngle
	}
	return rawAngle / g.baseline * TargetBaselineDeg
}
