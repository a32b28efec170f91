// 包 geo：球面几何（Haversine 与大圆横距）
// 背景：行星线为大圆折线，城市到线的距离决定影响强度；采用平均半径球体模型，
// 全球误差约 0.5%，对城市级评分足够。
// 约束：输入一律为十进制度；返回千米。
package geo

import "math"

// EarthRadiusKm：地球平均半径
const EarthRadiusKm = 6371.0

// Point：WGS84 坐标点
type Point struct {
	Lat float64
	Lng float64
}

// HaversineKm：两点间大圆距离
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// EquirectangularKm：等距柱状近似距离（单次三角函数）
// 背景：中纬度 500km 内误差约 1%，用于距离计算前的快速剔除，不用于最终权重。
func EquirectangularKm(a, b Point) float64 {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dx := (b.Lng - a.Lng) * math.Cos(midLat)
	dy := b.Lat - a.Lat
	// 1 度经线 ≈ 111.32 千米
	return 111.32 * math.Sqrt(dx*dx+dy*dy)
}

// CrossTrackKm：点到大圆路径的横向距离与沿线距离（均为千米，沿线带符号）
// 约束：数值钳制保证 asin/acos 定义域安全；cos(δxt)≈0 的极端情形按 ε 兜底
func CrossTrackKm(pt, s, e Point) (cross, along float64) {
	latP := pt.Lat * math.Pi / 180
	lngP := pt.Lng * math.Pi / 180
	lat1 := s.Lat * math.Pi / 180
	lng1 := s.Lng * math.Pi / 180
	lat2 := e.Lat * math.Pi / 180
	lng2 := e.Lng * math.Pi / 180

	// 起点到目标点的角距
	d13 := HaversineKm(s, pt) / EarthRadiusKm

	// 起点→目标点 与 起点→终点 的初始方位角
	y13 := math.Sin(lngP-lng1) * math.Cos(latP)
	x13 := math.Cos(lat1)*math.Sin(latP) - math.Sin(lat1)*math.Cos(latP)*math.Cos(lngP-lng1)
	b13 := math.Atan2(y13, x13)
	y12 := math.Sin(lng2-lng1) * math.Cos(lat2)
	x12 := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lng2-lng1)
	b12 := math.Atan2(y12, x12)

	// δxt = asin(sin(δ13)·sin(θ13−θ12))
	dxtRaw := math.Sin(d13) * math.Sin(b13-b12)
	dxt := math.Asin(clamp(dxtRaw, -1, 1))
	cross = math.Abs(dxt) * EarthRadiusKm

	// δat = acos(cos(δ13)/cos(δxt))，符号取自 cos(θ13−θ12)
	const eps = 1e-10
	cosDxt := math.Cos(dxt)
	if math.Abs(cosDxt) < eps {
		if cosDxt >= 0 {
			cosDxt = eps
		} else {
			cosDxt = -eps
		}
	}
	datAbs := math.Acos(clamp(math.Cos(d13)/cosDxt, -1, 1))
	if math.IsNaN(datAbs) {
		return cross, 0
	}
	along = datAbs * EarthRadiusKm
	if math.Cos(b13-b12) < 0 {
		along = -along
	}
	return cross, along
}

// SegmentDistanceKm：点到大圆线段的最短距离
// 背景：投影落在线段外时取较近端点的距离；跨日界线（经度差超过 180°）的线段在 ±180° 处
// 拆分为两段分别计算，避免太平洋区域出现横穿地球的伪近距
func SegmentDistanceKm(pt, s, e Point) float64 {
	if math.Abs(e.Lng-s.Lng) > 180 {
		crossLat, crossLng := datelineCrossing(s, e)
		opposite := 180.0
		if crossLng == 180.0 {
			opposite = -180.0
		}
		d1 := segmentDistanceInternal(pt, s, Point{Lat: crossLat, Lng: crossLng})
		d2 := segmentDistanceInternal(pt, Point{Lat: crossLat, Lng: opposite}, e)
		return math.Min(d1, d2)
	}
	return segmentDistanceInternal(pt, s, e)
}

func segmentDistanceInternal(pt, s, e Point) float64 {
	cross, along := CrossTrackKm(pt, s, e)
	segLen := HaversineKm(s, e)
	if along < 0 {
		return HaversineKm(pt, s)
	}
	if along > segLen {
		return HaversineKm(pt, e)
	}
	return cross
}

// datelineCrossing：线段与 ±180° 经线交点的纬度与所跨经线
// 约束：先将终点经度展开到与起点连续（Δλ∈[-180,180]）再线性插值
func datelineCrossing(s, e Point) (lat, lng float64) {
	lng2 := unwrapLng(e.Lng, s.Lng)
	crossing := -180.0
	if lng2 > s.Lng {
		crossing = 180.0
	}
	t := (crossing - s.Lng) / (lng2 - s.Lng)
	return s.Lat + t*(e.Lat-s.Lat), crossing
}

func unwrapLng(lng, ref float64) float64 {
	d := lng - ref
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return ref + d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
