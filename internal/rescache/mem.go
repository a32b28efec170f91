package rescache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// 文档注释：进程内 LRU 缓存（缓存键为内容哈希）
// 背景：热点请求在短周期内重复出现，进程内命中可完全省掉序列化与网络往返；TTL 可调。
// 约束：过期条目懒清理，读到时才剔除；容量超限从尾部逐出。
type Mem struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
}

type memItem struct {
	k   string
	v   []byte
	exp time.Time
}

func NewMem(capacity int, ttl time.Duration) *Mem {
	return &Mem{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *Mem) Name() string { return "mem" }

func (c *Mem) Get(_ context.Context, k string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(memItem)
		if time.Now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return nil, false
}

func (c *Mem) Set(_ context.Context, k string, v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		e.Value = memItem{k: k, v: v, exp: time.Now().Add(c.ttl)}
		c.lst.MoveToFront(e)
		return
	}
	e := c.lst.PushFront(memItem{k: k, v: v, exp: time.Now().Add(c.ttl)})
	c.dict[k] = e
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back != nil {
			it := back.Value.(memItem)
			delete(c.dict, it.k)
			c.lst.Remove(back)
		}
	}
}

func (c *Mem) Flush(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lst = list.New()
	c.dict = make(map[string]*list.Element)
}
