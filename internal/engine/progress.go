package engine

import (
	"sync"

	"scout-api/internal/protocol"
)

// 进度阶段与各自的百分比区间
const (
	PhaseInitializing = "initializing" // 0..10
	PhaseComputing    = "computing"    // 10..85
	PhaseAggregating  = "aggregating"  // 85..100
)

// Reporter：请求级进度上报器
// 约束：percent 单调不减；100 为终态且只发一次，终态之后的事件全部丢弃。
type Reporter struct {
	mu   sync.Mutex
	id   string
	sink func(protocol.Progress)
	last float64
	done bool
}

// NewReporter：构造上报器，sink 为空时所有事件静默丢弃
func NewReporter(id string, sink func(protocol.Progress)) *Reporter {
	return &Reporter{id: id, sink: sink}
}

// Report：发出一个进度事件，倒退与终态后的事件被吞掉
func (r *Reporter) Report(percent float64, phase, detail string) {
	if r == nil || r.sink == nil {
		return
	}
	r.mu.Lock()
	if r.done || percent < r.last {
		r.mu.Unlock()
		return
	}
	r.last = percent
	if percent >= 100 {
		percent = 100
		r.done = true
	}
	r.mu.Unlock()
	r.sink(protocol.Progress{
		Type:    protocol.TypeProgress,
		ID:      r.id,
		Percent: percent,
		Phase:   phase,
		Detail:  detail,
	})
}

// Computing：把城市遍历进度映射进 computing 区间（10..85）
func (r *Reporter) Computing(done, total int, detail string) {
	if total <= 0 {
		return
	}
	r.Report(10+75*float64(done)/float64(total), PhaseComputing, detail)
}

// Finish：发出终态事件
func (r *Reporter) Finish() {
	r.Report(100, PhaseAggregating, "")
}
