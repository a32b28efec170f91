package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"scout-api/internal/config"
	"scout-api/internal/metrics"
	"scout-api/internal/score"
)

// Backend：一个执行层的类别计算实现
// 三个实现共享同一评分管线，仅在线预处理与城市遍历方式上不同；
// 简化容差为 0 时三层结果逐比特一致。
type Backend interface {
	Name() string
	ScoreCategory(ctx context.Context, job CategoryJob) (score.CategoryOutcome, error)
}

// CategoryJob：一次类别计算的全部输入
type CategoryJob struct {
	Category score.Category
	Lines    []score.InputLine
	Cities   []score.CityRef
	Cfg      config.Scoring
	// OnCity：每处理若干城市回调一次已完成数，供进度上报
	OnCity func(done, total int)
}

const progressStride = 256

// fallbackBackend：纯参考实现
// 不做包围盒预筛、不做折线简化，逐城全量计算；作为数值基准与最终兜底。
type fallbackBackend struct{}

func (fallbackBackend) Name() string { return TierFallback.Name() }

func (fallbackBackend) ScoreCategory(ctx context.Context, job CategoryJob) (score.CategoryOutcome, error) {
	plain := job.Cfg
	plain.SimplifyToleranceDeg = 0
	lines := score.SelectCategoryLines(score.PrepareLines(job.Lines, plain), job.Category)
	sets := make([]score.CityInfluences, 0, len(job.Cities))
	for i, city := range job.Cities {
		if err := ctx.Err(); err != nil {
			return score.CategoryOutcome{}, err
		}
		sets = append(sets, score.BuildCityInfluences(city, lines, plain, score.BuildOptions{}, nil))
		if job.OnCity != nil && (i+1)%progressStride == 0 {
			job.OnCity(i+1, len(job.Cities))
		}
	}
	metrics.CitiesScoredTotal.Add(float64(len(job.Cities)))
	return score.RankCategory(sets, job.Category, plain), nil
}

// singleBackend：优化核心，串行
// 线预处理（包围盒 + 可选简化）换取主循环的快速否决
type singleBackend struct{}

func (singleBackend) Name() string { return TierSingle.Name() }

func (singleBackend) ScoreCategory(ctx context.Context, job CategoryJob) (score.CategoryOutcome, error) {
	lines := score.SelectCategoryLines(score.PrepareLines(job.Lines, job.Cfg), job.Category)
	opt := score.BuildOptions{UseBBox: true, FastReject: job.Cfg.SimplifyToleranceDeg > 0}
	var stats score.BuildStats
	sets := make([]score.CityInfluences, 0, len(job.Cities))
	for i, city := range job.Cities {
		if err := ctx.Err(); err != nil {
			return score.CategoryOutcome{}, err
		}
		sets = append(sets, score.BuildCityInfluences(city, lines, job.Cfg, opt, &stats))
		if job.OnCity != nil && (i+1)%progressStride == 0 {
			job.OnCity(i+1, len(job.Cities))
		}
	}
	metrics.CitiesScoredTotal.Add(float64(len(job.Cities)))
	metrics.BBoxSkippedTotal.Add(float64(stats.BBoxSkipped))
	return score.RankCategory(sets, job.Category, job.Cfg), nil
}

// parallelBackend：优化核心，多协程按下标交错分片
// 每个分片写入预分配切片的固定位置，城市次序与串行完全一致，结果天然确定
type parallelBackend struct {
	workers int
}

func (b parallelBackend) Name() string { return TierParallel.Name() }

func (b parallelBackend) ScoreCategory(ctx context.Context, job CategoryJob) (score.CategoryOutcome, error) {
	lines := score.SelectCategoryLines(score.PrepareLines(job.Lines, job.Cfg), job.Category)
	opt := score.BuildOptions{UseBBox: true, FastReject: job.Cfg.SimplifyToleranceDeg > 0}
	n := len(job.Cities)
	sets := make([]score.CityInfluences, n)

	workers := b.workers
	if workers < 1 {
		workers = 1
	}
	var done atomic.Int64
	var skipped atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			var stats score.BuildStats
			for i := offset; i < n; i += workers {
				if ctx.Err() != nil {
					return
				}
				sets[i] = score.BuildCityInfluences(job.Cities[i], lines, job.Cfg, opt, &stats)
				if d := done.Add(1); job.OnCity != nil && d%progressStride == 0 {
					job.OnCity(int(d), n)
				}
			}
			skipped.Add(stats.BBoxSkipped)
		}(w)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return score.CategoryOutcome{}, err
	}
	metrics.CitiesScoredTotal.Add(float64(n))
	metrics.BBoxSkippedTotal.Add(float64(skipped.Load()))
	return score.RankCategory(sets, job.Category, job.Cfg), nil
}
