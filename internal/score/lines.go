package score

import (
	"scout-api/internal/config"
	"scout-api/internal/geo"
)

// PreparedLine：附带空间索引的输入线
// 背景：包围盒与可选折线简化是一次性 O(lines) 成本，换取 O(cities×lines) 主循环的快速否决。
// forcedChallenging 由类别筛选阶段标记：列入该类别挑战表的线，其带符号强度恒为负。
type PreparedLine struct {
	InputLine
	BBox              geo.BBox
	forcedChallenging bool
}

// PrepareLines：构建优化线集（包围盒 + 可选简化）
// 约束：简化容差为 0 时点集原样保留，三个执行层数值完全一致
func PrepareLines(lines []InputLine, cfg config.Scoring) []PreparedLine {
	out := make([]PreparedLine, len(lines))
	for i, l := range lines {
		pts := l.Points
		if cfg.SimplifyToleranceDeg > 0 && len(pts) > 2 {
			pts = geo.SimplifyPolyline(pts, cfg.SimplifyToleranceDeg)
		}
		pl := l
		pl.Points = pts
		out[i] = PreparedLine{
			InputLine: pl,
			BBox:      geo.NewBBox(pts, cfg.MaxInfluenceKm),
		}
	}
	return out
}

// SelectCategoryLines：筛出与类别相关的线并标记挑战面
// 有利表与挑战表之外的线对该类别无意义，直接剔除。
// 约束：两表同时收录的线（如 home 的 Saturn:IC）按有利处理，不做强制负号。
func SelectCategoryLines(lines []PreparedLine, cat Category) []PreparedLine {
	var out []PreparedLine
	for _, l := range lines {
		switch {
		case IsBeneficialFor(l.Planet, l.Angle, cat):
			out = append(out, l)
		case IsChallengingFor(l.Planet, l.Angle, cat):
			l.forcedChallenging = true
			out = append(out, l)
		}
	}
	return out
}
