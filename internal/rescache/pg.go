package rescache

import (
	"context"

	"scout-api/internal/store"
)

// 文档注释：PostgreSQL 结果缓存层
// 背景：最深一级，进程与 Redis 都冷启动时兜底；category 与 overall 各占一张表，
// 由构造时的 kind 决定路由。
type PG struct {
	st       *store.Store
	kind     string
	category string
}

// NewPGCategory：类别结果的持久层；category 仅作为表内附注列
func NewPGCategory(st *store.Store, category string) *PG {
	return &PG{st: st, kind: "category", category: category}
}

// NewPGOverall：综合结果的持久层
func NewPGOverall(st *store.Store) *PG {
	return &PG{st: st, kind: "overall"}
}

func (c *PG) Name() string { return "pg" }

func (c *PG) Get(ctx context.Context, k string) ([]byte, bool) {
	if c.st == nil {
		return nil, false
	}
	if c.kind == "overall" {
		return c.st.GetOverallResult(ctx, k)
	}
	return c.st.GetCategoryResult(ctx, k)
}

func (c *PG) Set(ctx context.Context, k string, v []byte) {
	if c.st == nil {
		return
	}
	if c.kind == "overall" {
		_ = c.st.PutOverallResult(ctx, k, v)
		return
	}
	_ = c.st.PutCategoryResult(ctx, k, c.category, v)
}
