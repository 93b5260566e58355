package models

// 姿态模型输出的关键点索引（MediaPipe Pose 编号）
const (
	LandmarkLeftEar       = 7
	LandmarkRightEar      = 8
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
)

// Landmark 3D人体关键点（归一化图像坐标 + 相对深度）
type Landmark struct {
	X float64 `json:"x"` // 0~1，图像横向
	Y float64 `json:"y"` // 0~1，图像纵向
	Z float64 `json:"z"` // 相对深度（越小越靠近相机）
}

// PoseFrame 单帧姿态推理结果（来自姿态估计端，经 MQTT 上报）
// Landmarks 为空表示该帧未检测到人体
type PoseFrame struct {
	Ts        int64      `json:"ts"`      // epoch 毫秒
	FrameW    int        `json:"frame_w"` // 画面宽度（像素）
	FrameH    int        `json:"frame_h"` // 画面高度（像素）
	Landmarks []Landmark `json:"landmarks"`
}

// HasPose 该帧是否检测到人体
func (f *PoseFrame) HasPose() bool {
	return len(f.Landmarks) > LandmarkRightShoulder
}

// KeyLandmarks 提取颈部姿态计算所需的四个关键点
// 返回顺序：左耳、右耳、左肩、右肩；ok=false 表示关键点不足
func (f *PoseFrame) KeyLandmarks() (earL, earR, shoulderL, shoulderR Landmark, ok bool) {
	if !f.HasPose() {
		return Landmark{}, Landmark{}, Landmark{}, Landmark{}, false
	}
	return f.Landmarks[LandmarkLeftEar],
		f.Landmarks[LandmarkRightEar],
		f.Landmarks[LandmarkLeftShoulder],
		f.Landmarks[LandmarkRightShoulder],
		true
}
