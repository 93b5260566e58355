package posture

import (
	"errors"
	"math"

	"neckcare-posture/internal/models"
)

// ErrDegenerateInput 几何退化的关键点输入（双肩重合、耳中点落在肩线上等）
// 调用方应丢弃该帧采样，不更新任何状态
var ErrDegenerateInput = errors.New("degenerate landmark geometry")

type vec3 struct {
	x, y, z float64
}

func fromLandmark(l models.Landmark) vec3 {
	return vec3{l.X, l.Y, l.Z}
}

func (a vec3) sub(b vec3) vec3 {
	return vec3{a.x - b.x, a.y - b.y, a.z - b.z}
}

func (a vec3) add(b vec3) vec3 {
	return vec3{a.x + b.x, a.y + b.y, a.z + b.z}
}

func (a vec3) scale(s float64) vec3 {
	return vec3{a.x * s, a.y * s, a.z * s}
}

func (a vec3) dot(b vec3) float64 {
	return a.x*b.x + a.y*b.y + a.z*b.z
}

func (a vec3) cross(b vec3) vec3 {
	return vec3{
		a.y*b.z - a.z*b.y,
		a.z*b.x - a.x*b.z,
		a.x*b.y - a.y*b.x,
	}
}

func (a vec3) norm() float64 {
	return math.Sqrt(a.dot(a))
}

// Estimate 由双耳、双肩关键点计算前倾颈部角度（度）
// 算法：
//  1. 取双耳中点 M
//  2. 以左肩为锚点，把 M 正交投影到肩线上得到 M'
//  3. 过肩线与竖直方向构造参考平面（辅助点 V = {M.x, M'.y, 1}）
//  4. 角度 = M'->M 向量与参考平面的夹角，角度越小前倾越严重
//
// 纯函数，无副作用，可并发调用
func Estimate(earL, earR, shoulderL, shoulderR models.Landmark) (float64, error) {
	el, er := fromLandmark(earL), fromLandmark(earR)
	sl, sr := fromLandmark(shoulderL), fromLandmark(shoulderR)

	// 双耳中点
	m := el.add(er).scale(0.5)

	// 肩向量（锚点为左肩）
	s0 := sl
	s := sr.sub(sl)
	ss := s.dot(s)
	if ss == 0 {
		// 双肩重合
		return 0, ErrDegenerateInput
	}

	// M 在肩线上的正交投影 M'
	t := m.sub(s0).dot(s) / ss
	mp := s0.add(s.scale(t))

	// 参考平面：过肩线与近似竖直方向
	v := vec3{m.x, mp.y, 1}
	n := s.cross(v.sub(mp))
	mm := mp.sub(m)

	lmm := mm.norm()
	ln := n.norm()
	if lmm == 0 || ln == 0 {
		return 0, ErrDegenerateInput
	}

	cos := math.Abs(mm.dot(n)) / (lmm * ln)
	if cos > 1 {
		cos = 1
	}

	return (math.Pi/2 - math.Acos(cos)) * 180 / math.Pi, nil
}
