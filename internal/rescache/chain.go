package rescache

import (
	"context"

	"scout-api/internal/metrics"
)

// Layer：单级结果缓存
type Layer interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
}

// 文档注释：缓存链
// 背景：按“进程内 -> Redis -> PostgreSQL”的固定顺序查询，先命中先返回；
// 深层命中时回填浅层，让后续请求在更近的一级命中。
// 约束：写入对所有层生效，后写覆盖先写；任何一层失败不阻断其余层。
type Chain struct {
	layers []Layer
}

func NewChain(layers ...Layer) *Chain {
	var ls []Layer
	for _, l := range layers {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return &Chain{layers: ls}
}

func (c *Chain) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, l := range c.layers {
		if v, ok := l.Get(ctx, key); ok {
			metrics.CacheHitsTotal.WithLabelValues(l.Name()).Inc()
			for j := 0; j < i; j++ {
				c.layers[j].Set(ctx, key, v)
			}
			return v, true
		}
	}
	metrics.CacheMissesTotal.Inc()
	return nil, false
}

func (c *Chain) Set(ctx context.Context, key string, val []byte) {
	for _, l := range c.layers {
		l.Set(ctx, key, val)
	}
}
