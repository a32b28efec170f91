package geo

import "math"

// PolylineDistanceKm：点到折线的最短距离
// 约束：空折线返回 +Inf；单点折线退化为点距
func PolylineDistanceKm(pt Point, line []Point) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return HaversineKm(pt, line[0])
	}
	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		d := SegmentDistanceKm(pt, line[i], line[i+1])
		if d < min {
			min = d
		}
	}
	return min
}

// BBox：折线包围盒，外扩影响半径换算的度数缓冲
// 背景：先用包围盒快速否决城市-线配对，跳过昂贵的横距计算；经验上可省去六到八成距离运算。
// 约束：缓冲按赤道换算（1°≈111.32km），保守不漏
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	BufferDeg      float64
}

// NewBBox：从折线点集构建包围盒
// 空折线返回全球盒（永不否决），避免调用方分支
func NewBBox(points []Point, bufferKm float64) BBox {
	if len(points) == 0 {
		return BBox{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}
	}
	b := BBox{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLng: math.Inf(1), MaxLng: math.Inf(-1),
		BufferDeg: bufferKm / 111.32,
	}
	for _, p := range points {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b
}

// MightContain：城市是否可能落在影响半径内
// 返回 true 仅表示需要精确计算；返回 false 是确定排除。
// 经度区间在 MinLng>MaxLng 时按跨日界线处理。
func (b BBox) MightContain(p Point) bool {
	if p.Lat < b.MinLat-b.BufferDeg || p.Lat > b.MaxLat+b.BufferDeg {
		return false
	}
	if b.MinLng > b.MaxLng {
		return p.Lng >= b.MinLng-b.BufferDeg || p.Lng <= b.MaxLng+b.BufferDeg
	}
	return p.Lng >= b.MinLng-b.BufferDeg && p.Lng <= b.MaxLng+b.BufferDeg
}

// SimplifyPolyline：Douglas-Peucker 折线简化，容差为度
// 背景：行星线通常上百点，简化到约两成点数可明显提速；容差 0.1° ≈ 11km。
func SimplifyPolyline(points []Point, toleranceDeg float64) []Point {
	if len(points) <= 2 {
		return append([]Point(nil), points...)
	}
	maxDist := 0.0
	maxIdx := 0
	first := points[0]
	last := points[len(points)-1]
	for i := 1; i < len(points)-1; i++ {
		d := perpendicularDeg(points[i], first, last)
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxDist > toleranceDeg {
		left := SimplifyPolyline(points[:maxIdx+1], toleranceDeg)
		right := SimplifyPolyline(points[maxIdx:], toleranceDeg)
		return append(left[:len(left)-1], right...)
	}
	return []Point{first, last}
}

// 平面近似的点线垂距（度），仅用于简化判据
func perpendicularDeg(p, a, b Point) float64 {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat
	if dx == 0 && dy == 0 {
		return math.Hypot(p.Lng-a.Lng, p.Lat-a.Lat)
	}
	num := math.Abs(dy*p.Lng - dx*p.Lat + b.Lng*a.Lat - b.Lat*a.Lng)
	return num / math.Hypot(dx, dy)
}
