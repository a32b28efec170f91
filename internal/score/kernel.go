package score

import (
	"math"

	"scout-api/internal/config"
)

// Kernel：距离→[0,1] 影响权重
// 背景：三种内核共用单一带宽参数；硬截断半径之外一律归零，给单线计算量一个确定上界。
// 高斯 σ≈150-250km 的衰减形态与占星线影响的经验半径吻合。
func Kernel(distanceKm float64, cfg config.Scoring) float64 {
	if distanceKm > cfg.MaxInfluenceKm {
		return 0
	}
	switch cfg.Kernel {
	case config.KernelLinear:
		v := 1 - distanceKm/cfg.KernelParamKm
		if v < 0 {
			return 0
		}
		return v
	case config.KernelExponential:
		return math.Exp(-distanceKm / cfg.KernelParamKm)
	default: // gaussian
		r := distanceKm / cfg.KernelParamKm
		return math.Exp(-0.5 * r * r)
	}
}
