// 包 catalog：城市目录（加载、校验、人口下限视图）
// 背景：目录在进程生命周期内只读；人口下限筛出的子集按下限值缓存，
// 同一下限的重复请求不再扫描全量城市。
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"scout-api/internal/score"
)

// City：目录中的一座城市
type City struct {
	Name       string  `json:"name"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Population int64   `json:"population"`
}

// Valid：坐标与人口是否可用
func (c City) Valid() bool {
	return c.Name != "" &&
		c.Lat >= -90 && c.Lat <= 90 &&
		c.Lng >= -180 && c.Lng <= 180 &&
		c.Population >= 0
}

// Catalog：不可变城市集 + 按人口下限缓存的派生视图
type Catalog struct {
	cities []City

	mu    sync.RWMutex
	views map[int64][]score.CityRef
}

// New：从城市切片构建目录
// 约束：无效行直接拒绝，宁可导入失败也不让脏坐标进入评分主循环
func New(cities []City) (*Catalog, error) {
	for i, c := range cities {
		if !c.Valid() {
			return nil, fmt.Errorf("invalid city at row %d: %q lat=%v lng=%v pop=%d",
				i, c.Name, c.Lat, c.Lng, c.Population)
		}
	}
	sorted := make([]City, len(cities))
	copy(sorted, cities)
	// 固定序：人口降序，同人口按名称/国家，保证派生视图逐次一致
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Population != sorted[j].Population {
			return sorted[i].Population > sorted[j].Population
		}
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Country < sorted[j].Country
	})
	return &Catalog{
		cities: sorted,
		views:  make(map[int64][]score.CityRef),
	}, nil
}

// Len：目录城市总数
func (c *Catalog) Len() int { return len(c.cities) }

// All：全量城市（只读视图，调用方不得修改）
func (c *Catalog) All() []City { return c.cities }

// Filtered：人口 ≥ popFloor 的城市引用
// 视图按下限值缓存；目录按人口降序存放，截到第一个低于下限的位置即可
func (c *Catalog) Filtered(popFloor int64) []score.CityRef {
	if popFloor < 0 {
		popFloor = 0
	}
	c.mu.RLock()
	v, ok := c.views[popFloor]
	c.mu.RUnlock()
	if ok {
		return v
	}

	cut := sort.Search(len(c.cities), func(i int) bool {
		return c.cities[i].Population < popFloor
	})
	refs := make([]score.CityRef, cut)
	for i := 0; i < cut; i++ {
		refs[i] = score.CityRef{
			Name:    c.cities[i].Name,
			Country: c.cities[i].Country,
			Lat:     c.cities[i].Lat,
			Lng:     c.cities[i].Lng,
		}
	}

	c.mu.Lock()
	c.views[popFloor] = refs
	c.mu.Unlock()
	return refs
}
