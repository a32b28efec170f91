// 包 engine：执行协调器（三级执行层、后台并行升级、请求级降级与进度上报）
package engine

import "sync/atomic"

// Tier：执行层级
// fallback 为纯参考实现（永不失败），single 为优化核心的串行执行，
// parallel 为优化核心的多协程分片执行。
type Tier int32

const (
	TierFallback Tier = iota
	TierSingle
	TierParallel
)

// Name：协议里的执行层名
func (t Tier) Name() string {
	switch t {
	case TierParallel:
		return "parallel"
	case TierSingle:
		return "single"
	default:
		return "fallback"
	}
}

// tierState：原子执行层状态
// 约束：全局层级只升不降；请求内的临时降级不回写全局状态。
type tierState struct {
	v atomic.Int32
}

func (s *tierState) Load() Tier { return Tier(s.v.Load()) }

// Raise：单调抬升，目标不高于当前值时不变
func (s *tierState) Raise(t Tier) bool {
	for {
		cur := s.v.Load()
		if int32(t) <= cur {
			return false
		}
		if s.v.CompareAndSwap(cur, int32(t)) {
			return true
		}
	}
}
