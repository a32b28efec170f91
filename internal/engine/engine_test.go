package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-api/internal/catalog"
	"scout-api/internal/config"
	"scout-api/internal/protocol"
	"scout-api/internal/score"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.City{
		{Name: "Springfield", Country: "US", Lat: 39.8, Lng: -89.65, Population: 110_000},
		{Name: "Nearville", Country: "US", Lat: 40.5, Lng: -89.6, Population: 60_000},
		{Name: "Faraway", Country: "JP", Lat: 35.7, Lng: 139.7, Population: 9_000_000},
		{Name: "Smalltown", Country: "US", Lat: 39.9, Lng: -89.7, Population: 5_000},
	})
	require.NoError(t, err)
	return cat
}

func testOptions() Options {
	return Options{
		LoadTimeout:         time.Second,
		ParallelInitTimeout: time.Second,
		ParallelGrace:       100 * time.Millisecond,
		NumThreads:          4,
		RequestWorkers:      4,
		MemCacheSize:        64,
		CacheTTL:            time.Minute,
	}
}

// 经过 Springfield 的太阳 MC 线
func sunMCLine() protocol.Line {
	return protocol.Line{
		Planet: "Sun",
		Angle:  "MC",
		Rating: 5,
		Points: [][2]float64{{20, -89.65}, {55, -89.65}},
	}
}

func categoryRequest(id string) protocol.Request {
	return protocol.Request{
		Type:     protocol.TypeScoutCategory,
		ID:       id,
		Category: "career",
		Lines:    []protocol.Line{sunMCLine()},
	}
}

func loaded(t *testing.T, c *Coordinator) {
	t.Helper()
	c.Load(context.Background())
	select {
	case <-c.parallelDone:
	case <-time.After(2 * time.Second):
		t.Fatal("parallel init did not finish")
	}
}

func TestTierMonotonic(t *testing.T) {
	var s tierState
	assert.Equal(t, TierFallback, s.Load())
	assert.True(t, s.Raise(TierSingle))
	assert.True(t, s.Raise(TierParallel))
	assert.False(t, s.Raise(TierSingle), "no downgrade")
	assert.Equal(t, TierParallel, s.Load())
}

func TestTierNames(t *testing.T) {
	assert.Equal(t, "fallback", TierFallback.Name())
	assert.Equal(t, "single", TierSingle.Name())
	assert.Equal(t, "parallel", TierParallel.Name())
}

func TestProgressMonotonicSingleTerminal(t *testing.T) {
	var events []protocol.Progress
	r := NewReporter("p1", func(p protocol.Progress) { events = append(events, p) })
	r.Report(0, PhaseInitializing, "")
	r.Report(10, PhaseComputing, "")
	r.Report(5, PhaseComputing, "")
	r.Computing(100, 200, "")
	r.Finish()
	r.Finish()
	r.Report(50, PhaseComputing, "late")

	require.NotEmpty(t, events)
	last := -1.0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, last)
		last = e.Percent
	}
	terminals := 0
	for _, e := range events {
		if e.Percent == 100 {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)
}

func TestLoadSuccessReachesParallel(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	var notified protocol.ParallelReady
	var mu sync.Mutex
	c.OnParallelReady = func(p protocol.ParallelReady) {
		mu.Lock()
		notified = p
		mu.Unlock()
	}

	ready := c.Load(context.Background())
	assert.Equal(t, protocol.TypeReady, ready.Type)
	assert.Equal(t, "single", ready.Backend)
	assert.Equal(t, 4, ready.NumThreads)

	select {
	case <-c.parallelDone:
	case <-time.After(2 * time.Second):
		t.Fatal("parallel init did not finish")
	}
	assert.Equal(t, TierParallel, c.Tier())
	mu.Lock()
	assert.Equal(t, protocol.TypeParallelReady, notified.Type)
	assert.Equal(t, 4, notified.NumThreads)
	mu.Unlock()
	assert.False(t, c.Ready().ParallelInitializing)
}

func TestLoadFailurePermanentFallback(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	c.loadFn = func(context.Context) error { return errors.New("no platform support") }

	ready := c.Load(context.Background())
	assert.Equal(t, "fallback", ready.Backend)
	assert.Equal(t, TierFallback, c.Tier())

	// 兜底层照常出结果
	res, errEv := c.ScoutCategory(context.Background(), categoryRequest("r1"), nil)
	require.Nil(t, errEv)
	assert.Equal(t, "fallback", res.Backend)
	assert.NotEmpty(t, res.Rankings)
}

func TestParallelInitFailureKeepsSingle(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	c.parallelFn = func(context.Context) error { return errors.New("pool spawn failed") }
	loaded(t, c)
	assert.Equal(t, TierSingle, c.Tier())

	res, errEv := c.ScoutCategory(context.Background(), categoryRequest("r1"), nil)
	require.Nil(t, errEv)
	assert.Equal(t, "single", res.Backend)
}

func TestScenarioSunLineNearSpringfield(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)

	res, errEv := c.ScoutCategory(context.Background(), categoryRequest("r1"), nil)
	require.Nil(t, errEv)
	assert.Equal(t, protocol.TypeCategoryResult, res.Type)
	assert.Equal(t, score.CategoryCareer, res.Category)

	var spring *score.CityRanking
	for i := range res.Rankings {
		if res.Rankings[i].City.Name == "Springfield" {
			spring = &res.Rankings[i]
		}
		// 线在太平洋另一侧，远城绝不入榜
		assert.NotEqual(t, "Faraway", res.Rankings[i].City.Name)
	}
	require.NotNil(t, spring, "Springfield should be ranked")
	assert.Positive(t, spring.BenefitScore)
	require.Len(t, spring.TopInfluences, 1)
	assert.Equal(t, "Sun", spring.TopInfluences[0].Planet)
	assert.Equal(t, "MC", spring.TopInfluences[0].Angle)
}

// 三个执行层对同一请求给出逐比特一致的结果
func TestTierEquivalence(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	req := categoryRequest("r1")

	run := func(b Backend) protocol.CategoryResult {
		c := New(cat, config.Default(), testOptions(), nil, nil)
		c.makeBackend = func(Tier) Backend { return b }
		loaded(t, c)
		res, errEv := c.ScoutCategory(ctx, req, nil)
		require.Nil(t, errEv)
		return res
	}
	fb := run(fallbackBackend{})
	sg := run(singleBackend{})
	pl := run(parallelBackend{workers: 4})

	assert.Equal(t, fb.Rankings, sg.Rankings)
	assert.Equal(t, fb.Rankings, pl.Rankings)
	assert.Equal(t, fb.TotalBeneficial, pl.TotalBeneficial)
}

// 计算失败只降一层重算本请求，全局层级不动
type failingBackend struct{ name string }

func (b failingBackend) Name() string { return b.name }
func (b failingBackend) ScoreCategory(context.Context, CategoryJob) (score.CategoryOutcome, error) {
	return score.CategoryOutcome{}, errors.New("compute blew up")
}

func TestPerRequestDowngrade(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	orig := c.makeBackend
	c.makeBackend = func(t Tier) Backend {
		if t > TierFallback {
			return failingBackend{name: t.Name()}
		}
		return orig(t)
	}
	loaded(t, c)
	require.Equal(t, TierParallel, c.Tier())

	res, errEv := c.ScoutCategory(context.Background(), categoryRequest("r1"), nil)
	require.Nil(t, errEv)
	assert.Equal(t, "fallback", res.Backend)
	assert.NotEmpty(t, res.Rankings)
	// 全局层级不受请求内失败影响
	assert.Equal(t, TierParallel, c.Tier())
}

func TestAllTiersFailYieldsRequestError(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	c.makeBackend = func(t Tier) Backend { return failingBackend{name: t.Name()} }
	loaded(t, c)

	_, errEv := c.ScoutCategory(context.Background(), categoryRequest("r9"), nil)
	require.NotNil(t, errEv)
	assert.Equal(t, protocol.TypeError, errEv.Type)
	assert.Equal(t, "r9", errEv.ID)
	assert.Contains(t, errEv.Message, "compute")
}

func TestCategoryCacheHit(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)
	ctx := context.Background()

	first, errEv := c.ScoutCategory(ctx, categoryRequest("r1"), nil)
	require.Nil(t, errEv)
	second, errEv := c.ScoutCategory(ctx, categoryRequest("r2"), nil)
	require.Nil(t, errEv)

	assert.Equal(t, "cache", second.Backend)
	assert.Equal(t, first.Rankings, second.Rankings)
	assert.Equal(t, "r2", second.ID)
}

// 并行初始化完成前并发同键请求，结果彼此一致且与并行层后算一致
func TestConcurrentRequestsBeforeParallelReady(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	release := make(chan struct{})
	c.parallelFn = func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.opt.ParallelGrace = 0
	c.Load(context.Background())
	require.Equal(t, TierSingle, c.Tier())

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]protocol.CategoryResult, 2)
	errs := make([]*protocol.Error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 两请求体相同，允许其一命中另一写入的缓存
			results[i], errs[i] = c.ScoutCategory(ctx, categoryRequest("c"), nil)
		}(i)
	}
	wg.Wait()
	require.Nil(t, errs[0])
	require.Nil(t, errs[1])
	assert.Equal(t, results[0].Rankings, results[1].Rankings)

	close(release)
	select {
	case <-c.parallelDone:
	case <-time.After(2 * time.Second):
		t.Fatal("parallel init did not finish")
	}
	require.Equal(t, TierParallel, c.Tier())

	// 换一个缓存键（人口下限不同）强制并行层真算
	req := categoryRequest("p")
	req.PopulationFloor = 1
	fresh, errEv := c.ScoutCategory(ctx, req, nil)
	require.Nil(t, errEv)
	assert.Equal(t, "parallel", fresh.Backend)
	assert.Equal(t, results[0].Rankings, fresh.Rankings)
}

func TestPopulationFloorFiltering(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)
	ctx := context.Background()

	all, errEv := c.ScoutCategory(ctx, categoryRequest("a"), nil)
	require.Nil(t, errEv)
	floored := categoryRequest("b")
	floored.PopulationFloor = 50_000
	big, errEv := c.ScoutCategory(ctx, floored, nil)
	require.Nil(t, errEv)

	assert.LessOrEqual(t, len(big.Rankings), len(all.Rankings))
	// 两个集合都保留的城市分数不变
	scores := map[string]float64{}
	for _, r := range all.Rankings {
		scores[r.City.Name] = r.BenefitScore
	}
	for _, r := range big.Rankings {
		if v, ok := scores[r.City.Name]; ok {
			assert.Equal(t, v, r.BenefitScore, "city %s", r.City.Name)
		}
	}
	for _, r := range big.Rankings {
		assert.NotEqual(t, "Smalltown", r.City.Name, "below floor")
	}
}

func TestScoutOverall(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)

	var events []protocol.Progress
	var mu sync.Mutex
	req := protocol.Request{
		Type:  protocol.TypeScoutOverall,
		ID:    "ov1",
		Lines: []protocol.Line{sunMCLine()},
	}
	res, errEv := c.ScoutOverall(context.Background(), req, func(p protocol.Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})
	require.Nil(t, errEv)
	assert.Equal(t, protocol.TypeOverallResult, res.Type)
	assert.Len(t, res.PerCategoryRankings, len(score.AllCategories))
	assert.NotEmpty(t, res.Rankings)

	// Sun:MC 对 career/wealth 等均有利，Springfield 应在综合有利组
	found := false
	for _, r := range res.Rankings {
		if r.City.Name == "Springfield" {
			found = true
			assert.Positive(t, r.TotalScore)
			assert.Positive(t, r.BeneficialCategoryCount)
		}
	}
	assert.True(t, found)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)

	// 综合缓存命中
	second, errEv := c.ScoutOverall(context.Background(), req, nil)
	require.Nil(t, errEv)
	assert.Equal(t, "cache", second.Backend)
	assert.Equal(t, res.Rankings, second.Rankings)
}

// 综合榜单 rankings 为完整拼接：有利组在前，挑战组原样续在其后
func TestOverallRankingsIncludeChallenging(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)

	// Neptune:MC 经过 Faraway，对 career/wealth 为挑战线
	neptune := protocol.Line{
		Planet: "Neptune",
		Angle:  "MC",
		Rating: 4,
		Points: [][2]float64{{20, 139.7}, {55, 139.7}},
	}
	req := protocol.Request{
		Type:  protocol.TypeScoutOverall,
		ID:    "ov2",
		Lines: []protocol.Line{sunMCLine(), neptune},
	}
	res, errEv := c.ScoutOverall(context.Background(), req, nil)
	require.Nil(t, errEv)
	require.NotEmpty(t, res.Challenging)
	require.Greater(t, len(res.Rankings), len(res.Challenging))

	tail := res.Rankings[len(res.Rankings)-len(res.Challenging):]
	assert.Equal(t, res.Challenging, tail)
	for _, r := range res.Rankings[:len(res.Rankings)-len(res.Challenging)] {
		assert.Greater(t, r.BeneficialCategoryCount, r.ChallengingCategoryCount)
	}

	found := false
	for _, r := range res.Challenging {
		if r.City.Name == "Faraway" {
			found = true
			assert.Negative(t, r.TotalScore)
		}
	}
	assert.True(t, found, "Faraway should land in the challenging group")
}

// groupByCountry 开关在计算路径与缓存命中路径都生效
func TestCategoryGroupByCountry(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)
	ctx := context.Background()

	plain, errEv := c.ScoutCategory(ctx, categoryRequest("g0"), nil)
	require.Nil(t, errEv)
	assert.Empty(t, plain.Countries)

	req := categoryRequest("g1")
	req.GroupByCountry = true
	res, errEv := c.ScoutCategory(ctx, req, nil)
	require.Nil(t, errEv)
	assert.Equal(t, "cache", res.Backend)
	require.NotEmpty(t, res.Countries)
	assert.Equal(t, "US", res.Countries[0].Country)
	total := 0
	for _, ctry := range res.Countries {
		total += len(ctry.Cities)
	}
	assert.Equal(t, len(res.Rankings), total)
}

func TestScoutBatch(t *testing.T) {
	c := New(testCatalog(t), config.Default(), testOptions(), nil, nil)
	loaded(t, c)

	req := protocol.Request{
		Type:           protocol.TypeScoutBatch,
		ID:             "b1",
		Categories:     []string{"career", "wealth"},
		Lines:          []protocol.Line{sunMCLine()},
		GroupByCountry: true,
	}
	res, errEv := c.ScoutBatch(context.Background(), req, nil)
	require.Nil(t, errEv)
	assert.Equal(t, protocol.TypeBatchResult, res.Type)
	require.Len(t, res.PerCategory, 2)
	assert.Equal(t, score.CategoryCareer, res.PerCategory[0].Category)
	assert.Equal(t, score.CategoryWealth, res.PerCategory[1].Category)
	assert.NotEmpty(t, res.PerCategory[0].Countries)
	require.NotNil(t, res.Overall)
	assert.NotEmpty(t, res.Overall.Rankings)
}
