// 包 protocol：请求/响应消息信封与入参校验
// 背景：评分核心以消息协议对外，HTTP 流式端点与 NATS 工作进程共用同一套信封；
// 请求 id 为关联令牌，异步响应靠它与请求配对。
package protocol

import (
	"encoding/json"
	"fmt"

	"scout-api/internal/geo"
	"scout-api/internal/score"
)

// 请求类型
const (
	TypeInit          = "init"
	TypeScoutCategory = "scoutCategory"
	TypeScoutOverall  = "scoutOverall"
	TypeScoutBatch    = "scoutBatch"
)

// 响应类型
const (
	TypeReady          = "ready"
	TypeParallelReady  = "parallelReady"
	TypeCategoryResult = "categoryResult"
	TypeOverallResult  = "overallResult"
	TypeBatchResult    = "batchResult"
	TypeProgress       = "progress"
	TypeError          = "error"
)

// Line：线的线上传输形态，点为 [lat,lng] 二元组数组
type Line struct {
	Planet string       `json:"planet"`
	Angle  string       `json:"angle"`
	Rating int          `json:"rating"`
	Aspect string       `json:"aspect,omitempty"`
	Points [][2]float64 `json:"points"`
}

// Request：统一请求信封
type Request struct {
	Type            string   `json:"type"`
	ID              string   `json:"id,omitempty"`
	Category        string   `json:"category,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Lines           []Line   `json:"lines,omitempty"`
	PopulationFloor int64    `json:"populationFloor,omitempty"`
	// GroupByCountry：类别请求附带按国家分组的榜单视图
	GroupByCountry bool `json:"groupByCountry,omitempty"`
}

// Ready：init 的应答，报告选定执行层与并行初始化状态
type Ready struct {
	Type                 string `json:"type"`
	Backend              string `json:"backend"`
	NumThreads           int    `json:"numThreads"`
	ParallelInitializing bool   `json:"parallelInitializing"`
}

// ParallelReady：后台并行池就绪的一次性通知（非应答）
type ParallelReady struct {
	Type       string `json:"type"`
	NumThreads int    `json:"numThreads"`
	InitTimeMs int64  `json:"initTimeMs"`
}

// CategoryResult：单类别榜单；countries 仅在请求开启 groupByCountry 时出现
type CategoryResult struct {
	Type             string                `json:"type"`
	ID               string                `json:"id"`
	Category         score.Category        `json:"category"`
	Rankings         []score.CityRanking   `json:"rankings"`
	TotalBeneficial  int                   `json:"totalBeneficial"`
	TotalChallenging int                   `json:"totalChallenging"`
	Countries        []score.RankedCountry `json:"countries,omitempty"`
	Backend          string                `json:"backend"`
	TimeMs           int64                 `json:"timeMs"`
}

// OverallResult：跨类综合榜单；perCategoryRankings 为计算途中顺带产出的各类别榜
// rankings 为有利组在前、挑战组在后的完整拼接；challenging 单独重复挑战组便于取用
type OverallResult struct {
	Type                string                     `json:"type"`
	ID                  string                     `json:"id"`
	Rankings            []score.OverallCityRanking `json:"rankings"`
	Challenging         []score.OverallCityRanking `json:"challenging,omitempty"`
	TotalBeneficial     int                        `json:"totalBeneficial"`
	TotalChallenging    int                        `json:"totalChallenging"`
	PerCategoryRankings []CategoryResult           `json:"perCategoryRankings,omitempty"`
	Backend             string                     `json:"backend"`
	TimeMs              int64                      `json:"timeMs"`
}

// BatchResult：多类别 + 综合的合并应答
type BatchResult struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	PerCategory []CategoryResult `json:"perCategory"`
	Overall     *OverallResult   `json:"overall,omitempty"`
	Backend     string           `json:"backend"`
	TimeMs      int64            `json:"timeMs"`
}

// Progress：进度事件，percent 单调不减，100 为终态
type Progress struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Percent float64 `json:"percent"`
	Phase   string  `json:"phase"`
	Detail  string  `json:"detail,omitempty"`
}

// Error：请求级错误事件
type Error struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// NewError：构造错误事件
func NewError(id string, format string, args ...any) Error {
	return Error{Type: TypeError, ID: id, Message: fmt.Sprintf(format, args...)}
}

// Decode：从原始字节解析请求信封
func Decode(raw []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("decode request: %w", err)
	}
	return r, nil
}

// ToInput：线上形态转评分输入
func (l Line) ToInput() score.InputLine {
	pts := make([]geo.Point, len(l.Points))
	for i, p := range l.Points {
		pts[i] = geo.Point{Lat: p[0], Lng: p[1]}
	}
	return score.InputLine{
		Planet: l.Planet,
		Angle:  l.Angle,
		Rating: l.Rating,
		Aspect: score.Aspect(l.Aspect),
		Points: pts,
	}
}

// ToInputs：批量转换
func ToInputs(lines []Line) []score.InputLine {
	out := make([]score.InputLine, len(lines))
	for i, l := range lines {
		out[i] = l.ToInput()
	}
	return out
}
