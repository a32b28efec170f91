package score

import (
	"math"
	"sort"

	"scout-api/internal/config"
	"scout-api/internal/geo"
)

// BuildOptions：影响构建的执行档位开关
// UseBBox：包围盒预筛（不改变结果，只省计算）；
// FastReject：等距柱状近似 + 1.2 余量的快速否决，仅在折线已启用简化的近似档位下使用，
// 精确档位保持三层数值一致。
type BuildOptions struct {
	UseBBox    bool
	FastReject bool
}

// BuildStats：预筛效果统计，由执行层汇总进指标
type BuildStats struct {
	LinesChecked int64
	BBoxSkipped  int64
}

// CityInfluences：一座城市的全部线影响（已排序并施加递减权重）
type CityInfluences struct {
	City          CityRef
	Influences    []LineInfluence
	MinDistanceKm float64
}

// BuildCityInfluences：对单城计算全部线影响
// 流程：包围盒否决 → 最短折线距离 → 截断 → weight = kernel·相位修正·(rating−中性值) →
// 按 |weight| 降序 → 递减乘数（第1×1.0、第2×0.8、第3×0.6、第4起×0.4，默认表）。
// 排序附带行星/角度次序键，保证并发与重复请求下结果逐字节一致。
func BuildCityInfluences(city CityRef, lines []PreparedLine, cfg config.Scoring, opt BuildOptions, stats *BuildStats) CityInfluences {
	pt := geo.Point{Lat: city.Lat, Lng: city.Lng}
	minDist := math.Inf(1)
	raw := make([]LineInfluence, 0, 4)
	for i := range lines {
		l := &lines[i]
		if stats != nil {
			stats.LinesChecked++
		}
		if opt.UseBBox && !l.BBox.MightContain(pt) {
			if stats != nil {
				stats.BBoxSkipped++
			}
			continue
		}
		if opt.FastReject && !fastWithinCutoff(pt, l, cfg.MaxInfluenceKm) {
			continue
		}
		d := geo.PolylineDistanceKm(pt, l.Points)
		if d > cfg.MaxInfluenceKm {
			continue
		}
		w := lineWeight(l, d, cfg)
		if w == 0 {
			continue
		}
		if d < minDist {
			minDist = d
		}
		raw = append(raw, LineInfluence{
			Planet:     l.Planet,
			Angle:      l.Angle,
			Aspect:     l.Aspect,
			DistanceKm: d,
			Weight:     w,
		})
	}
	sort.Slice(raw, func(i, j int) bool {
		ai, aj := math.Abs(raw[i].Weight), math.Abs(raw[j].Weight)
		if ai != aj {
			return ai > aj
		}
		if raw[i].Planet != raw[j].Planet {
			return raw[i].Planet < raw[j].Planet
		}
		return raw[i].Angle < raw[j].Angle
	})
	for i := range raw {
		raw[i].Weight *= cfg.Diminishing(i)
	}
	return CityInfluences{City: city, Influences: raw, MinDistanceKm: minDist}
}

// lineWeight：截断前的单线带符号权重
func lineWeight(l *PreparedLine, distanceKm float64, cfg config.Scoring) float64 {
	base := float64(l.Rating) - cfg.NeutralRating
	if l.forcedChallenging && base > 0 {
		base = -base
	}
	switch {
	case l.Aspect == AspectNone || l.Aspect == AspectConjunction:
		// 本体线/合相不修正
	case harmonious(l.Aspect):
		base *= cfg.HarmoniousAspectMod
	default:
		base *= cfg.InharmoniousAspectMod
	}
	return Kernel(distanceKm, cfg) * base
}

// fastWithinCutoff：无三角函数的段端点近似距离，余量 1.2 倍后仍超截断才否决
func fastWithinCutoff(pt geo.Point, l *PreparedLine, cutoffKm float64) bool {
	if len(l.Points) == 1 {
		return geo.EquirectangularKm(pt, l.Points[0]) <= cutoffKm*1.2
	}
	min := math.Inf(1)
	for _, p := range l.Points {
		if d := geo.EquirectangularKm(pt, p); d < min {
			min = d
		}
	}
	return min <= cutoffKm*1.2
}
