package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"scout-api/internal/catalog"
	"scout-api/internal/config"
	"scout-api/internal/logger"
	"scout-api/internal/metrics"
	"scout-api/internal/protocol"
	"scout-api/internal/rescache"
	"scout-api/internal/score"
	"scout-api/internal/store"
)

// Options：协调器的运行参数
type Options struct {
	// LoadTimeout：优化核心装载超时，超时视为装载失败并永久停留在 fallback
	LoadTimeout time.Duration
	// ParallelInitTimeout：后台并行池初始化超时，超时只永久关闭 parallel 层
	ParallelInitTimeout time.Duration
	// ParallelGrace：并行初始化进行中时，新请求最多等待这么久再定层
	ParallelGrace time.Duration
	// NumThreads：并行层协程数
	NumThreads int
	// RequestWorkers：请求级工作槽数量，超出的请求排队等待
	RequestWorkers int
	// MemCacheSize / CacheTTL：进程内结果缓存容量与各级缓存 TTL
	MemCacheSize int
	CacheTTL     time.Duration
}

// OptionsFromEnv：按环境变量组装运行参数，缺省取线上默认值
func OptionsFromEnv() Options {
	threads := getenvInt("SCOUT_NUM_THREADS", 0)
	if threads <= 0 {
		threads = runtime.NumCPU()
		if threads > 8 {
			threads = 8
		}
	}
	return Options{
		LoadTimeout:         time.Duration(getenvInt("SCOUT_LOAD_TIMEOUT_MS", 5000)) * time.Millisecond,
		ParallelInitTimeout: time.Duration(getenvInt("SCOUT_PARALLEL_INIT_TIMEOUT_MS", 10000)) * time.Millisecond,
		ParallelGrace:       time.Duration(getenvInt("SCOUT_PARALLEL_GRACE_MS", 2000)) * time.Millisecond,
		NumThreads:          threads,
		RequestWorkers:      getenvInt("SCOUT_REQUEST_WORKERS", 4),
		MemCacheSize:        getenvInt("SCOUT_MEM_CACHE", 256),
		CacheTTL:            time.Duration(getenvInt("SCOUT_CACHE_TTL_H", 24)) * time.Hour,
	}
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Coordinator：执行协调器
// 背景：装载成功进入 single，后台升级 parallel；装载失败永久停留 fallback。
// 全局层级只升不降，请求内失败只对该请求降一层重算，互不影响。
type Coordinator struct {
	cat *catalog.Catalog
	cfg config.Scoring
	opt Options

	tier         tierState
	threads      atomic.Int32
	parallelInit atomic.Bool
	parallelDone chan struct{}
	parallelOnce sync.Once

	mem *rescache.Mem
	rds *rescache.Redis
	st  *store.Store

	sem chan struct{}

	// OnParallelReady：并行池就绪的一次性通知，Load 之前设置
	OnParallelReady func(protocol.ParallelReady)

	// 测试钩子：替换装载/并行初始化/层级后端
	loadFn      func(ctx context.Context) error
	parallelFn  func(ctx context.Context) error
	makeBackend func(t Tier) Backend
}

// New：构造协调器；st 与 rdb 允许为 nil（对应缓存层缺位）
func New(cat *catalog.Catalog, cfg config.Scoring, opt Options, st *store.Store, rdb *redis.Client) *Coordinator {
	c := &Coordinator{
		cat:          cat,
		cfg:          cfg,
		opt:          opt,
		parallelDone: make(chan struct{}),
		mem:          rescache.NewMem(opt.MemCacheSize, opt.CacheTTL),
		st:           st,
		sem:          make(chan struct{}, max(1, opt.RequestWorkers)),
	}
	if rdb != nil {
		c.rds = rescache.NewRedis(rdb, "scout:", opt.CacheTTL)
	}
	c.loadFn = c.defaultLoad
	c.parallelFn = c.defaultParallelInit
	c.makeBackend = c.defaultBackend
	return c
}

func (c *Coordinator) defaultBackend(t Tier) Backend {
	switch t {
	case TierParallel:
		return parallelBackend{workers: int(c.threads.Load())}
	case TierSingle:
		return singleBackend{}
	default:
		return fallbackBackend{}
	}
}

// defaultLoad：优化核心装载
// 校验评分参数并做一次探针计算，确认内核与目录可用
func (c *Coordinator) defaultLoad(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}
	if c.cat == nil || c.cat.Len() == 0 {
		return fmt.Errorf("empty city catalog")
	}
	if v := score.Kernel(0, c.cfg); v != 1.0 {
		return fmt.Errorf("kernel probe failed: kernel(0)=%v", v)
	}
	return ctx.Err()
}

// defaultParallelInit：并行池预热
// 跑一轮空分片确认协程调度可用；真实故障场景靠测试钩子注入
func (c *Coordinator) defaultParallelInit(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < int(c.threads.Load()); i++ {
		wg.Add(1)
		go func() { defer wg.Done() }()
	}
	wg.Wait()
	return ctx.Err()
}

// Load：装载执行核心并启动后台并行升级；永不返回错误
// 装载失败只体现为 ready 事件里的层级，不是用户可见错误
func (c *Coordinator) Load(ctx context.Context) protocol.Ready {
	lctx, cancel := context.WithTimeout(ctx, c.opt.LoadTimeout)
	err := runWithTimeout(lctx, c.loadFn)
	cancel()
	if err != nil {
		logger.L().Warn("native_load_fail", "err", err.Error())
		close(c.parallelDone)
		metrics.BackendTier.Set(float64(TierFallback))
		return c.Ready()
	}
	c.threads.Store(int32(c.opt.NumThreads))
	c.tier.Raise(TierSingle)
	metrics.BackendTier.Set(float64(TierSingle))
	logger.L().Info("native_load_ok", "threads", c.opt.NumThreads)

	c.parallelOnce.Do(func() {
		c.parallelInit.Store(true)
		go c.initParallel(context.WithoutCancel(ctx))
	})
	return c.Ready()
}

func (c *Coordinator) initParallel(ctx context.Context) {
	defer close(c.parallelDone)
	defer c.parallelInit.Store(false)
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, c.opt.ParallelInitTimeout)
	defer cancel()
	if err := runWithTimeout(pctx, c.parallelFn); err != nil {
		logger.L().Warn("parallel_init_fail", "err", err.Error())
		return
	}
	ms := time.Since(start).Milliseconds()
	c.tier.Raise(TierParallel)
	metrics.BackendTier.Set(float64(TierParallel))
	metrics.ParallelInitMs.Set(float64(ms))
	logger.L().Info("parallel_init_ok", "threads", c.threads.Load(), "ms", ms)
	if c.OnParallelReady != nil {
		c.OnParallelReady(protocol.ParallelReady{
			Type:       protocol.TypeParallelReady,
			NumThreads: int(c.threads.Load()),
			InitTimeMs: ms,
		})
	}
}

// runWithTimeout：fn 在独立协程执行，超时不等待其退出
func runWithTimeout(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready：当前层级快照
func (c *Coordinator) Ready() protocol.Ready {
	return protocol.Ready{
		Type:                 protocol.TypeReady,
		Backend:              c.tier.Load().Name(),
		NumThreads:           int(c.threads.Load()),
		ParallelInitializing: c.parallelInit.Load(),
	}
}

// Tier：当前全局层级
func (c *Coordinator) Tier() Tier { return c.tier.Load() }

// FlushCaches：清空各级结果缓存
func (c *Coordinator) FlushCaches(ctx context.Context) error {
	c.mem.Flush(ctx)
	if c.rds != nil {
		c.rds.Flush(ctx)
	}
	if c.st != nil {
		return c.st.FlushResults(ctx)
	}
	return nil
}

// acquire：占用一个请求工作槽
func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() { <-c.sem }

// graceWait：并行初始化进行中时给新请求一个短暂等待窗口
func (c *Coordinator) graceWait(ctx context.Context) {
	if c.opt.ParallelGrace <= 0 || !c.parallelInit.Load() {
		return
	}
	t := time.NewTimer(c.opt.ParallelGrace)
	defer t.Stop()
	select {
	case <-c.parallelDone:
	case <-t.C:
	case <-ctx.Done():
	}
}

// runCategory：带请求级降级的类别计算
// 层级在提交时刻快照；计算失败对本请求降一层重试，fallback 失败即请求失败
func (c *Coordinator) runCategory(ctx context.Context, job CategoryJob) (score.CategoryOutcome, string, error) {
	for t := c.tier.Load(); ; t-- {
		b := c.makeBackend(t)
		out, err := b.ScoreCategory(ctx, job)
		if err == nil {
			metrics.TierRequestsTotal.WithLabelValues(b.Name()).Inc()
			return out, b.Name(), nil
		}
		if ctx.Err() != nil || t == TierFallback {
			return score.CategoryOutcome{}, b.Name(), err
		}
		metrics.TierFallbacksTotal.Inc()
		logger.L().Warn("tier_downgrade", "from", b.Name(), "category", string(job.Category), "err", err.Error())
	}
}

// categoryChain / overallChain：三级缓存链（内存 → Redis → PostgreSQL）
func (c *Coordinator) categoryChain(cat score.Category) *rescache.Chain {
	var pg rescache.Layer
	if c.st != nil {
		pg = rescache.NewPGCategory(c.st, string(cat))
	}
	var rds rescache.Layer
	if c.rds != nil {
		rds = c.rds
	}
	return rescache.NewChain(c.mem, rds, pg)
}

func (c *Coordinator) overallChain() *rescache.Chain {
	var pg rescache.Layer
	if c.st != nil {
		pg = rescache.NewPGOverall(c.st)
	}
	var rds rescache.Layer
	if c.rds != nil {
		rds = c.rds
	}
	return rescache.NewChain(c.mem, rds, pg)
}

// cachedOutcome：类别结果的缓存载荷，保留未截断分组供综合聚合复用
type cachedOutcome struct {
	Outcome score.CategoryOutcome `json:"outcome"`
}

// cachedOverall：综合结果的缓存载荷
type cachedOverall struct {
	Overall     score.OverallOutcome    `json:"overall"`
	PerCategory []score.CategoryOutcome `json:"perCategory"`
}

// ScoutCategory：单类别请求
func (c *Coordinator) ScoutCategory(ctx context.Context, req protocol.Request, sink func(protocol.Progress)) (protocol.CategoryResult, *protocol.Error) {
	start := time.Now()
	metrics.RequestsTotal.WithLabelValues(protocol.TypeScoutCategory).Inc()
	if err := c.acquire(ctx); err != nil {
		return protocol.CategoryResult{}, errEvent(req.ID, "queue", err)
	}
	defer c.release()

	rep := NewReporter(req.ID, sink)
	rep.Report(0, PhaseInitializing, "")

	cat, _ := score.ParseCategory(req.Category)
	inputs := protocol.ToInputs(req.Lines)
	key := rescache.CategoryKey(inputs, cat, req.PopulationFloor)
	chain := c.categoryChain(cat)

	if payload, ok := chain.Get(ctx, key); ok {
		var cached cachedOutcome
		if err := json.Unmarshal(payload, &cached); err == nil {
			rep.Finish()
			res := categoryResult(req.ID, cached.Outcome, "cache", time.Since(start))
			if req.GroupByCountry {
				res.Countries = score.GroupByCountry(res.Rankings)
			}
			metrics.RequestDurationMs.WithLabelValues(protocol.TypeScoutCategory, "cache").
				Observe(float64(time.Since(start).Milliseconds()))
			return res, nil
		}
	}

	c.graceWait(ctx)
	cities := c.cat.Filtered(req.PopulationFloor)
	rep.Report(10, PhaseComputing, string(cat))

	outcome, backend, err := c.runCategory(ctx, CategoryJob{
		Category: cat,
		Lines:    inputs,
		Cities:   cities,
		Cfg:      c.cfg,
		OnCity:   func(done, total int) { rep.Computing(done, total, string(cat)) },
	})
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("compute").Inc()
		return protocol.CategoryResult{}, errEvent(req.ID, "compute", err)
	}
	rep.Report(85, PhaseAggregating, "")

	if payload, err := json.Marshal(cachedOutcome{Outcome: outcome}); err == nil {
		chain.Set(ctx, key, payload)
	}
	rep.Finish()
	metrics.RequestDurationMs.WithLabelValues(protocol.TypeScoutCategory, backend).
		Observe(float64(time.Since(start).Milliseconds()))
	res := categoryResult(req.ID, outcome, backend, time.Since(start))
	if req.GroupByCountry {
		res.Countries = score.GroupByCountry(res.Rankings)
	}
	return res, nil
}

// ScoutOverall：跨类综合请求，顺带产出六个类别的榜单
func (c *Coordinator) ScoutOverall(ctx context.Context, req protocol.Request, sink func(protocol.Progress)) (protocol.OverallResult, *protocol.Error) {
	start := time.Now()
	metrics.RequestsTotal.WithLabelValues(protocol.TypeScoutOverall).Inc()
	if err := c.acquire(ctx); err != nil {
		return protocol.OverallResult{}, errEvent(req.ID, "queue", err)
	}
	defer c.release()

	rep := NewReporter(req.ID, sink)
	rep.Report(0, PhaseInitializing, "")

	inputs := protocol.ToInputs(req.Lines)
	key := rescache.OverallKey(inputs, req.PopulationFloor)
	chain := c.overallChain()

	if payload, ok := chain.Get(ctx, key); ok {
		var cached cachedOverall
		if err := json.Unmarshal(payload, &cached); err == nil {
			rep.Finish()
			res := overallResult(req.ID, cached.Overall, cached.PerCategory, "cache", time.Since(start))
			metrics.RequestDurationMs.WithLabelValues(protocol.TypeScoutOverall, "cache").
				Observe(float64(time.Since(start).Milliseconds()))
			return res, nil
		}
	}

	c.graceWait(ctx)
	outcomes, backend, errEv := c.computeCategories(ctx, req.ID, inputs, score.AllCategories, req.PopulationFloor, rep)
	if errEv != nil {
		return protocol.OverallResult{}, errEv
	}
	rep.Report(85, PhaseAggregating, "")
	overall := score.AggregateOverall(outcomes, c.cfg)

	if payload, err := json.Marshal(cachedOverall{Overall: overall, PerCategory: outcomes}); err == nil {
		chain.Set(ctx, key, payload)
	}
	rep.Finish()
	metrics.RequestDurationMs.WithLabelValues(protocol.TypeScoutOverall, backend).
		Observe(float64(time.Since(start).Milliseconds()))
	return overallResult(req.ID, overall, outcomes, backend, time.Since(start)), nil
}

// ScoutBatch：指定类别集 + 以这些类别聚合的综合榜
// 约束：综合缓存键只对全量六类成立，子集聚合不写综合缓存
func (c *Coordinator) ScoutBatch(ctx context.Context, req protocol.Request, sink func(protocol.Progress)) (protocol.BatchResult, *protocol.Error) {
	start := time.Now()
	metrics.RequestsTotal.WithLabelValues(protocol.TypeScoutBatch).Inc()
	if err := c.acquire(ctx); err != nil {
		return protocol.BatchResult{}, errEvent(req.ID, "queue", err)
	}
	defer c.release()

	rep := NewReporter(req.ID, sink)
	rep.Report(0, PhaseInitializing, "")

	inputs := protocol.ToInputs(req.Lines)
	cats := make([]score.Category, len(req.Categories))
	for i, s := range req.Categories {
		cats[i], _ = score.ParseCategory(s)
	}

	c.graceWait(ctx)
	outcomes, backend, errEv := c.computeCategories(ctx, req.ID, inputs, cats, req.PopulationFloor, rep)
	if errEv != nil {
		return protocol.BatchResult{}, errEv
	}
	rep.Report(85, PhaseAggregating, "")

	overall := score.AggregateOverall(outcomes, c.cfg)
	per := make([]protocol.CategoryResult, len(outcomes))
	for i, oc := range outcomes {
		per[i] = categoryResult(req.ID, oc, backend, 0)
		if req.GroupByCountry {
			per[i].Countries = score.GroupByCountry(per[i].Rankings)
		}
	}
	ov := overallResult(req.ID, overall, nil, backend, 0)

	rep.Finish()
	metrics.RequestDurationMs.WithLabelValues(protocol.TypeScoutBatch, backend).
		Observe(float64(time.Since(start).Milliseconds()))
	return protocol.BatchResult{
		Type:        protocol.TypeBatchResult,
		ID:          req.ID,
		PerCategory: per,
		Overall:     &ov,
		Backend:     backend,
		TimeMs:      time.Since(start).Milliseconds(),
	}, nil
}

// computeCategories：逐类别计算，命中类别缓存的直接复用
// 进度把 computing 区间均分给各类别
func (c *Coordinator) computeCategories(ctx context.Context, id string, inputs []score.InputLine, cats []score.Category, popFloor int64, rep *Reporter) ([]score.CategoryOutcome, string, *protocol.Error) {
	cities := c.cat.Filtered(popFloor)
	backend := c.tier.Load().Name()
	outcomes := make([]score.CategoryOutcome, 0, len(cats))
	for i, cat := range cats {
		base := 10 + 75*float64(i)/float64(len(cats))
		span := 75 / float64(len(cats))
		rep.Report(base, PhaseComputing, string(cat))

		key := rescache.CategoryKey(inputs, cat, popFloor)
		chain := c.categoryChain(cat)
		if payload, ok := chain.Get(ctx, key); ok {
			var cached cachedOutcome
			if err := json.Unmarshal(payload, &cached); err == nil {
				outcomes = append(outcomes, cached.Outcome)
				continue
			}
		}
		outcome, b, err := c.runCategory(ctx, CategoryJob{
			Category: cat,
			Lines:    inputs,
			Cities:   cities,
			Cfg:      c.cfg,
			OnCity: func(done, total int) {
				rep.Report(base+span*float64(done)/float64(total), PhaseComputing, string(cat))
			},
		})
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("compute").Inc()
			return nil, b, errEvent(id, "compute", err)
		}
		backend = b
		if payload, err := json.Marshal(cachedOutcome{Outcome: outcome}); err == nil {
			chain.Set(ctx, key, payload)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, backend, nil
}

func categoryResult(id string, oc score.CategoryOutcome, backend string, d time.Duration) protocol.CategoryResult {
	return protocol.CategoryResult{
		Type:             protocol.TypeCategoryResult,
		ID:               id,
		Category:         oc.Category,
		Rankings:         oc.Rankings,
		TotalBeneficial:  oc.TotalBeneficial,
		TotalChallenging: oc.TotalChallenging,
		Backend:          backend,
		TimeMs:           d.Milliseconds(),
	}
}

func overallResult(id string, ov score.OverallOutcome, perCat []score.CategoryOutcome, backend string, d time.Duration) protocol.OverallResult {
	// rankings 承载完整榜单：有利组在前、挑战组在后
	rankings := make([]score.OverallCityRanking, 0, len(ov.Beneficial)+len(ov.Challenging))
	rankings = append(rankings, ov.Beneficial...)
	rankings = append(rankings, ov.Challenging...)
	res := protocol.OverallResult{
		Type:             protocol.TypeOverallResult,
		ID:               id,
		Rankings:         rankings,
		Challenging:      ov.Challenging,
		TotalBeneficial:  ov.TotalBeneficial,
		TotalChallenging: ov.TotalChallenging,
		Backend:          backend,
		TimeMs:           d.Milliseconds(),
	}
	for _, oc := range perCat {
		res.PerCategoryRankings = append(res.PerCategoryRankings, categoryResult(id, oc, backend, 0))
	}
	return res
}

func errEvent(id, stage string, err error) *protocol.Error {
	e := protocol.NewError(id, "%s: %s", stage, err.Error())
	return &e
}
