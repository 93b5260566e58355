package posture

import "time"

// FlushInterval 去抖窗口长度（墙钟时间，与帧率无关）
const FlushInterval = 1000 * time.Millisecond

// FlushResult 一次窗口结算的结果
type FlushResult struct {
	AvgAngle float64 // 窗口内角度均值
	IsTurtle bool    // 去抖后的乌龟颈状态
	Entered  bool    // 本次结算是否从正常翻转进入乌龟颈
}

// Stabilizer 姿态去抖器：1秒滑动窗口均值 + 非对称迟滞阈值
// 原始逐帧角度噪声很大，窗口均值加死区（进入阈值≠退出阈值）避免
// 状态在边界附近抖动
//
// 持有测量会话级的可变状态，跨会话必须重新创建实例，不可复用
type Stabilizer struct {
	sensitivity Sensitivity
	buffer      []float64
	lastFlush   time.Time
	isTurtle    bool
}

// NewStabilizer 创建去抖器
func NewStabilizer(sensitivity Sensitivity) *Stabilizer {
	return &Stabilizer{
		sensitivity: sensitivity,
		buffer:      make([]float64, 0, 64),
	}
}

// Push 推入一个原始角度采样
// 窗口未满 1000ms 时返回 nil（继续累积，不改变去抖状态）；
// 窗口期满时结算：计算缓冲均值、清空缓冲、应用迟滞阈值并返回结果
func (st *Stabilizer) Push(angleDeg float64, now time.Time) *FlushResult {
	if st.lastFlush.IsZero() {
		st.lastFlush = now
	}

	st.buffer = append(st.buffer, angleDeg)

	if now.Sub(st.lastFlush) < FlushInterval {
		return nil
	}

	sum := 0.0
	for _, a := range st.buffer {
		sum += a
	}
	avg := sum / float64(len(st.buffer))
	st.buffer = st.buffer[:0]
	st.lastFlush = now

	enter, exit := st.sensitivity.Thresholds()
	prev := st.isTurtle
	if !st.isTurtle && avg <= enter {
		st.isTurtle = true
	} else if st.isTurtle && avg >= exit {
		st.isTurtle = false
	}

	return &FlushResult{
		AvgAngle: avg,
		IsTurtle: st.isTurtle,
		Entered:  !prev && st.isTurtle,
	}
}

// Reset 姿态丢失时调用：清空缓冲并关闭当前乌龟颈状态区间
// 人体离开画面是正常可恢复状态，不是错误
func (st *Stabilizer) Reset() {
	st.buffer = st.buffer[:0]
	st.isTurtle = false
}

// IsTurtle 当前去抖后的状态
func (st *Stabilizer) IsTurtle() bool {
	return st.isTurtle
}
