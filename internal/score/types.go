// 包 score：位置评分核心（衰减内核、线影响构建、分类评分与跨类聚合）
// 背景：输入为出生盘推导出的行星/相位大圆线，输出为按生活类别排序的城市榜单；
// 所有公式为产品调校结果，数值行为即契约。
package score

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"scout-api/internal/geo"
)

// Category：生活类别，固定六类
type Category string

const (
	CategoryCareer    Category = "career"
	CategoryLove      Category = "love"
	CategoryHealth    Category = "health"
	CategoryHome      Category = "home"
	CategoryWellbeing Category = "wellbeing"
	CategoryWealth    Category = "wealth"
)

// AllCategories：跨类聚合使用的固定类别集
var AllCategories = []Category{
	CategoryCareer, CategoryLove, CategoryHealth,
	CategoryHome, CategoryWellbeing, CategoryWealth,
}

// ParseCategory：解析类别名，未知类别返回错误
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(s))
	for _, v := range AllCategories {
		if c == v {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %s", s)
}

// Aspect：行星相位；空值表示本体线（无相位）
type Aspect string

const (
	AspectNone         Aspect = ""
	AspectConjunction  Aspect = "conjunction"
	AspectTrine        Aspect = "trine"
	AspectSextile      Aspect = "sextile"
	AspectSquare       Aspect = "square"
	AspectQuincunx     Aspect = "quincunx"
	AspectOpposition   Aspect = "opposition"
	AspectSesquisquare Aspect = "sesquisquare"
)

// KnownAspect：相位是否可识别
func KnownAspect(a Aspect) bool {
	switch a {
	case AspectNone, AspectConjunction, AspectTrine, AspectSextile,
		AspectSquare, AspectQuincunx, AspectOpposition, AspectSesquisquare:
		return true
	}
	return false
}

// harmonious：相位的两档修正归类；合相视作线本身不做修正
func harmonious(a Aspect) bool {
	return a == AspectTrine || a == AspectSextile
}

// Nature：城市在某类别下的净面向
type Nature string

const (
	NatureBeneficial  Nature = "beneficial"
	NatureChallenging Nature = "challenging"
	NatureMixed       Nature = "mixed"
)

// InputLine：一条行星/相位影响线（请求期不可变）
type InputLine struct {
	Planet string      `json:"planet"`
	Angle  string      `json:"angle"`
	Rating int         `json:"rating"`
	Aspect Aspect      `json:"aspect,omitempty"`
	Points []geo.Point `json:"points"`
}

// Fingerprint：单线指纹（行星|角度|相位|评级|点数|点集哈希）
// 背景：缓存键要求对相同线集稳定且与传入顺序无关；坐标量化到 1e-4° 吸收浮点噪声。
func (l InputLine) Fingerprint() string {
	h := fnv.New64a()
	for _, p := range l.Points {
		fmt.Fprintf(h, "%d,%d;", int64(p.Lat*1e4), int64(p.Lng*1e4))
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d|%x", l.Planet, l.Angle, l.Aspect, l.Rating, len(l.Points), h.Sum64())
}

// LinesFingerprint：线集指纹，排序后拼接保证与顺序无关
func LinesFingerprint(lines []InputLine) string {
	fps := make([]string, len(lines))
	for i, l := range lines {
		fps[i] = l.Fingerprint()
	}
	sort.Strings(fps)
	return strings.Join(fps, "\n")
}

// CityRef：榜单项中的城市引用
type CityRef struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// LineInfluence：一条线对一座城市的实际贡献
// Weight 为施加递减权重后的带符号贡献值，正为有利、负为挑战
type LineInfluence struct {
	Planet     string  `json:"planet"`
	Angle      string  `json:"angle"`
	Aspect     Aspect  `json:"aspect,omitempty"`
	DistanceKm float64 `json:"distanceKm"`
	Weight     float64 `json:"weight"`
}

// CityRanking：某类别下一座城市的完整评分（产出后不可变）
type CityRanking struct {
	City            CityRef         `json:"city"`
	BenefitScore    float64         `json:"benefitScore"`
	IntensityScore  float64         `json:"intensityScore"`
	VolatilityScore float64         `json:"volatilityScore"`
	Nature          Nature          `json:"nature"`
	TopInfluences   []LineInfluence `json:"topInfluences"`
	MinDistanceKm   float64         `json:"minDistanceKm"`
	InfluenceCount  int             `json:"influenceCount"`
}

// CategoryScore：跨类聚合中单类别的摘要项
type CategoryScore struct {
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	Nature   Nature   `json:"nature"`
}

// OverallCityRanking：跨类聚合后的城市项
type OverallCityRanking struct {
	City                      CityRef         `json:"city"`
	TotalScore                float64         `json:"totalScore"`
	AverageScore              float64         `json:"averageScore"`
	PerCategory               []CategoryScore `json:"perCategory"`
	BeneficialCategoryCount   int             `json:"beneficialCategoryCount"`
	ChallengingCategoryCount  int             `json:"challengingCategoryCount"`
}

// RankedCountry：按国家分组的榜单（国家按其最佳城市排序）
type RankedCountry struct {
	Country          string        `json:"country"`
	Cities           []CityRanking `json:"cities"`
	BeneficialCount  int           `json:"beneficialCount"`
	ChallengingCount int           `json:"challengingCount"`
}
