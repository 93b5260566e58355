package posture

// Sensitivity 灵敏度档位（用户偏好，进程外部传入）
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityNormal Sensitivity = "normal"
	SensitivityHigh   Sensitivity = "high"
)

// Thresholds 档位对应的迟滞阈值（进入/退出，度）
// 进入阈值 < 退出阈值，构成死区，避免在边界附近反复翻转
func (s Sensitivity) Thresholds() (enter, exit float64) {
	switch s {
	case SensitivityLow:
		return 45, 48
	case SensitivityHigh:
		return 50, 53
	default:
		// normal
		return 48, 51
	}
}

// ParseSensitivity 解析灵敏度档位，未知值回落到 normal
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(s) {
	case SensitivityLow, SensitivityNormal, SensitivityHigh:
		return Sensitivity(s)
	default:
		return SensitivityNormal
	}
}
