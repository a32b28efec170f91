package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-api/internal/config"
	"scout-api/internal/geo"
)

// meridianLine：经过给定经度的南北向线段，便于让测试城市精确落在线上
func meridianLine(planet, angle string, rating int, lng float64) InputLine {
	return InputLine{
		Planet: planet,
		Angle:  angle,
		Rating: rating,
		Points: []geo.Point{{Lat: -30, Lng: lng}, {Lat: 60, Lng: lng}},
	}
}

func TestKernelProperties(t *testing.T) {
	for _, k := range []config.KernelType{config.KernelGaussian, config.KernelExponential, config.KernelLinear} {
		cfg := config.Default()
		cfg.Kernel = k
		assert.InDelta(t, 1.0, Kernel(0, cfg), 1e-12, "kernel %s at zero", k)
		prev := Kernel(0, cfg)
		for d := 50.0; d <= cfg.MaxInfluenceKm; d += 50 {
			v := Kernel(d, cfg)
			assert.LessOrEqual(t, v, prev, "kernel %s not monotone at %v km", k, d)
			assert.GreaterOrEqual(t, v, 0.0)
			prev = v
		}
		assert.Zero(t, Kernel(cfg.MaxInfluenceKm+1, cfg), "kernel %s beyond cutoff", k)
	}
}

func TestCategoryTables(t *testing.T) {
	assert.True(t, IsBeneficialFor("Pluto", "MC", CategoryCareer))
	assert.False(t, IsChallengingFor("Pluto", "MC", CategoryCareer))
	assert.True(t, IsChallengingFor("Pluto", "MC", CategoryWellbeing))
	assert.True(t, IsChallengingFor("Neptune", "MC", CategoryCareer))
	assert.False(t, RelevantFor("Moon", "DSC", CategoryCareer))
}

func TestSelectCategoryLinesDropsIrrelevant(t *testing.T) {
	cfg := config.Default()
	lines := PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
		meridianLine("Moon", "DSC", 4, 20),
		meridianLine("Neptune", "MC", 5, 20),
	}, cfg)
	sel := SelectCategoryLines(lines, CategoryCareer)
	require.Len(t, sel, 2)
	for _, l := range sel {
		if l.Planet == "Neptune" {
			assert.True(t, l.forcedChallenging)
		} else {
			assert.False(t, l.forcedChallenging)
		}
	}
}

// 两表同收的线按有利处理：home 的 Saturn:IC 高评级应得正分
func TestDualEntryLineResolvesBeneficial(t *testing.T) {
	cfg := config.Default()
	require.True(t, IsBeneficialFor("Saturn", "IC", CategoryHome))
	require.True(t, IsChallengingFor("Saturn", "IC", CategoryHome))

	city := CityRef{Name: "Hearth", Country: "TS", Lat: 10, Lng: 20}
	sel := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Saturn", "IC", 5, 20),
	}, cfg), CategoryHome)
	require.Len(t, sel, 1)
	assert.False(t, sel[0].forcedChallenging)

	ci := BuildCityInfluences(city, sel, cfg, BuildOptions{}, nil)
	require.Len(t, ci.Influences, 1)
	assert.Positive(t, ci.Influences[0].Weight)

	out := RankCategory([]CityInfluences{ci}, CategoryHome, cfg)
	require.Len(t, out.Beneficial, 1)
	assert.Empty(t, out.Challenging)
	assert.Positive(t, out.Beneficial[0].BenefitScore)

	// 仅列挑战表的线不受影响
	onlyChal := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Uranus", "IC", 5, 20),
	}, cfg), CategoryHome)
	require.Len(t, onlyChal, 1)
	assert.True(t, onlyChal[0].forcedChallenging)
}

// 城市落在单条强有利线上：正权重、有利面向、固定加成
func TestSingleBeneficialLineOnCity(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Testville", Country: "TS", Lat: 10, Lng: 20}
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
	}, cfg), CategoryCareer)

	ci := BuildCityInfluences(city, lines, cfg, BuildOptions{UseBBox: true}, nil)
	require.Len(t, ci.Influences, 1)
	assert.InDelta(t, 2.0, ci.Influences[0].Weight, 0.01)
	assert.Less(t, ci.MinDistanceKm, 1.0)

	out := RankCategory([]CityInfluences{ci}, CategoryCareer, cfg)
	require.Len(t, out.Beneficial, 1)
	assert.Empty(t, out.Challenging)
	r := out.Beneficial[0]
	assert.InDelta(t, 40.0, r.BenefitScore, 0.5)
	assert.Equal(t, NatureBeneficial, r.Nature)
	assert.Equal(t, 1, r.InfluenceCount)
	assert.Zero(t, r.VolatilityScore)
}

// 挑战表中的线把正评级强制转负
func TestChallengingTableForcesNegative(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Shadowton", Country: "TS", Lat: 10, Lng: 20}
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Neptune", "MC", 5, 20),
	}, cfg), CategoryCareer)

	ci := BuildCityInfluences(city, lines, cfg, BuildOptions{}, nil)
	require.Len(t, ci.Influences, 1)
	assert.Negative(t, ci.Influences[0].Weight)

	out := RankCategory([]CityInfluences{ci}, CategoryCareer, cfg)
	assert.Empty(t, out.Beneficial)
	require.Len(t, out.Challenging, 1)
	assert.Equal(t, NatureChallenging, out.Challenging[0].Nature)
	assert.Negative(t, out.Challenging[0].BenefitScore)
}

// 同点叠加正负两线：波动分显著，强度分远大于净分
func TestMixedInfluencesVolatility(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Crossroads", Country: "TS", Lat: 10, Lng: 20}
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
		meridianLine("Neptune", "MC", 5, 20),
	}, cfg), CategoryCareer)

	ci := BuildCityInfluences(city, lines, cfg, BuildOptions{}, nil)
	require.Len(t, ci.Influences, 2)
	out := RankCategory([]CityInfluences{ci}, CategoryCareer, cfg)
	var r CityRanking
	if len(out.Beneficial) == 1 {
		r = out.Beneficial[0]
	} else {
		require.Len(t, out.Challenging, 1)
		r = out.Challenging[0]
	}
	assert.Equal(t, 2, r.InfluenceCount)
	assert.Greater(t, r.VolatilityScore, 50.0)
	assert.Greater(t, r.IntensityScore, math.Abs(r.BenefitScore))
}

// 超出截断半径的城市不出现在任何榜单
func TestCityBeyondCutoffExcluded(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Farland", Country: "TS", Lat: 10, Lng: 40}
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
	}, cfg), CategoryCareer)

	ci := BuildCityInfluences(city, lines, cfg, BuildOptions{UseBBox: true}, nil)
	assert.Empty(t, ci.Influences)
	out := RankCategory([]CityInfluences{ci}, CategoryCareer, cfg)
	assert.Empty(t, out.Beneficial)
	assert.Empty(t, out.Challenging)
	assert.Empty(t, out.Rankings)
}

// 包围盒预筛不改变结果
func TestBBoxPrefilterEquivalence(t *testing.T) {
	cfg := config.Default()
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
		meridianLine("Venus", "MC", 4, 23),
		meridianLine("Neptune", "MC", 2, 120),
	}, cfg), CategoryCareer)
	cities := []CityRef{
		{Name: "A", Country: "TS", Lat: 10, Lng: 20},
		{Name: "B", Country: "TS", Lat: 12, Lng: 22},
		{Name: "C", Country: "TS", Lat: -20, Lng: 60},
	}
	var stats BuildStats
	for _, c := range cities {
		plain := BuildCityInfluences(c, lines, cfg, BuildOptions{}, nil)
		boxed := BuildCityInfluences(c, lines, cfg, BuildOptions{UseBBox: true}, &stats)
		assert.Equal(t, plain, boxed, "city %s", c.Name)
	}
	assert.Positive(t, stats.BBoxSkipped)
}

// 递减权重按 |weight| 名次施加
func TestDiminishingWeightsApplied(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Stacked", Country: "TS", Lat: 10, Lng: 20}
	// 同为 wealth 有利线，距离递增使名次确定
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
		meridianLine("Venus", "MC", 5, 21),
		meridianLine("Mercury", "MC", 5, 22),
	}, cfg), CategoryWealth)

	ci := BuildCityInfluences(city, lines, cfg, BuildOptions{}, nil)
	require.Len(t, ci.Influences, 3)
	// 排序后第 1 名未缩减，第 2、3 名分别 ×0.8、×0.6
	k1 := Kernel(ci.Influences[0].DistanceKm, cfg)
	k2 := Kernel(ci.Influences[1].DistanceKm, cfg)
	k3 := Kernel(ci.Influences[2].DistanceKm, cfg)
	assert.InDelta(t, 2*k1*1.0, ci.Influences[0].Weight, 1e-9)
	assert.InDelta(t, 2*k2*0.8, ci.Influences[1].Weight, 1e-9)
	assert.InDelta(t, 2*k3*0.6, ci.Influences[2].Weight, 1e-9)
}

// 两线（评级 5 与 2）同压一城：首位影响权重占优，合成分严格介于两个单线分之间
func TestTwoLineCombinationBetweenSingles(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Between", Country: "TS", Lat: 10, Lng: 20}
	strong := meridianLine("Jupiter", "MC", 5, 20)
	weak := meridianLine("Venus", "MC", 2, 20)

	scoreOf := func(ls ...InputLine) float64 {
		sel := SelectCategoryLines(PrepareLines(ls, cfg), CategoryWealth)
		ci := BuildCityInfluences(city, sel, cfg, BuildOptions{}, nil)
		out := RankCategory([]CityInfluences{ci}, CategoryWealth, cfg)
		if len(out.Beneficial) == 1 {
			return out.Beneficial[0].BenefitScore
		}
		return out.Challenging[0].BenefitScore
	}
	sStrong := scoreOf(strong)
	sWeak := scoreOf(weak)
	sBoth := scoreOf(strong, weak)

	assert.Greater(t, sBoth, sWeak)
	assert.Less(t, sBoth, sStrong)
	assert.NotEqual(t, sStrong+sWeak, sBoth, "not a naive sum")

	sel := SelectCategoryLines(PrepareLines([]InputLine{strong, weak}, cfg), CategoryWealth)
	ci := BuildCityInfluences(city, sel, cfg, BuildOptions{}, nil)
	require.Len(t, ci.Influences, 2)
	// 首位满权重，次位已缩减
	assert.Equal(t, "Jupiter", ci.Influences[0].Planet)
	assert.Greater(t, math.Abs(ci.Influences[0].Weight), math.Abs(ci.Influences[1].Weight))
}

func TestAspectModifiers(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Aspected", Country: "TS", Lat: 10, Lng: 20}
	mk := func(a Aspect) []PreparedLine {
		l := meridianLine("Jupiter", "MC", 5, 20)
		l.Aspect = a
		return SelectCategoryLines(PrepareLines([]InputLine{l}, cfg), CategoryCareer)
	}
	base := BuildCityInfluences(city, mk(AspectNone), cfg, BuildOptions{}, nil).Influences[0].Weight
	conj := BuildCityInfluences(city, mk(AspectConjunction), cfg, BuildOptions{}, nil).Influences[0].Weight
	trine := BuildCityInfluences(city, mk(AspectTrine), cfg, BuildOptions{}, nil).Influences[0].Weight
	square := BuildCityInfluences(city, mk(AspectSquare), cfg, BuildOptions{}, nil).Influences[0].Weight
	assert.InDelta(t, base, conj, 1e-12)
	assert.InDelta(t, base*0.8, trine, 1e-9)
	assert.InDelta(t, base*0.6, square, 1e-9)
}

func TestTopK(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 10, TopK(10, cfg))
	assert.Equal(t, 200, TopK(200, cfg))
	assert.Equal(t, 200, TopK(201, cfg))
	assert.Equal(t, 200, TopK(3000, cfg))
	assert.Equal(t, 500, TopK(10000, cfg))
}

func TestRankCategoryTruncationKeepsTotals(t *testing.T) {
	cfg := config.Default()
	cfg.TopKFloor = 5
	cfg.TopKFraction = 0.05
	var sets []CityInfluences
	for i := 0; i < 40; i++ {
		sets = append(sets, CityInfluences{
			City: CityRef{Name: string(rune('a' + i%26)), Country: string(rune('A' + i/26))},
			Influences: []LineInfluence{{
				Planet: "Jupiter", Angle: "MC",
				Weight: 0.1 + float64(i)*0.05,
			}},
			MinDistanceKm: 10,
		})
	}
	out := RankCategory(sets, CategoryCareer, cfg)
	assert.Equal(t, 40, out.TotalBeneficial)
	assert.Len(t, out.Rankings, 5)
	// 截断榜降序
	for i := 1; i < len(out.Rankings); i++ {
		assert.GreaterOrEqual(t, out.Rankings[i-1].BenefitScore, out.Rankings[i].BenefitScore)
	}
	// 未截断分组保持全量
	assert.Len(t, out.Beneficial, 40)
}

func TestBuildDeterminism(t *testing.T) {
	cfg := config.Default()
	city := CityRef{Name: "Same", Country: "TS", Lat: 11, Lng: 20.5}
	lines := SelectCategoryLines(PrepareLines([]InputLine{
		meridianLine("Jupiter", "MC", 5, 20),
		meridianLine("Neptune", "MC", 4, 21),
		meridianLine("Sun", "ASC", 4, 19),
	}, cfg), CategoryCareer)
	first := BuildCityInfluences(city, lines, cfg, BuildOptions{UseBBox: true}, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, BuildCityInfluences(city, lines, cfg, BuildOptions{UseBBox: true}, nil))
	}
}

func TestLinesFingerprintOrderIndependent(t *testing.T) {
	a := meridianLine("Jupiter", "MC", 5, 20)
	b := meridianLine("Neptune", "IC", 2, -40)
	assert.Equal(t, LinesFingerprint([]InputLine{a, b}), LinesFingerprint([]InputLine{b, a}))
	assert.NotEqual(t, LinesFingerprint([]InputLine{a}), LinesFingerprint([]InputLine{b}))

	// 评级改变指纹
	c := a
	c.Rating = 4
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestAggregateOverall(t *testing.T) {
	cfg := config.Default()
	x := CityRef{Name: "X", Country: "AA", Lat: 1, Lng: 1}
	y := CityRef{Name: "Y", Country: "BB", Lat: 2, Lng: 2}
	outcomes := []CategoryOutcome{
		{
			Category: CategoryCareer,
			Beneficial: []CityRanking{
				{City: x, BenefitScore: 40, Nature: NatureBeneficial},
				{City: y, BenefitScore: 2, Nature: NatureMixed},
			},
		},
		{
			Category: CategoryLove,
			Beneficial: []CityRanking{
				{City: x, BenefitScore: 30, Nature: NatureBeneficial},
			},
			Challenging: []CityRanking{
				{City: y, BenefitScore: -20, Nature: NatureChallenging},
			},
		},
		{
			Category: CategoryHealth,
			Challenging: []CityRanking{
				{City: x, BenefitScore: -10, Nature: NatureChallenging},
			},
		},
	}
	out := AggregateOverall(outcomes, cfg)
	require.Len(t, out.Beneficial, 1)
	require.Len(t, out.Challenging, 1)

	bx := out.Beneficial[0]
	assert.Equal(t, x, bx.City)
	// 40 + 30 − 0.5·10
	assert.InDelta(t, 65.0, bx.TotalScore, 1e-9)
	assert.InDelta(t, 65.0/3, bx.AverageScore, 1e-9)
	assert.Equal(t, 2, bx.BeneficialCategoryCount)
	assert.Equal(t, 1, bx.ChallengingCategoryCount)
	require.Len(t, bx.PerCategory, 3)
	assert.Equal(t, CategoryCareer, bx.PerCategory[0].Category)

	by := out.Challenging[0]
	assert.Equal(t, y, by.City)
	// mixed 类别不进总分，但计入类别数与均值分母
	assert.InDelta(t, -10.0, by.TotalScore, 1e-9)
	assert.Equal(t, 0, by.BeneficialCategoryCount)
	assert.Equal(t, 1, by.ChallengingCategoryCount)
	assert.Len(t, by.PerCategory, 2)
}

func TestGroupByCountry(t *testing.T) {
	rs := []CityRanking{
		{City: CityRef{Name: "a1", Country: "AA"}, BenefitScore: 50, Nature: NatureBeneficial},
		{City: CityRef{Name: "b1", Country: "BB"}, BenefitScore: 40, Nature: NatureBeneficial},
		{City: CityRef{Name: "a2", Country: "AA"}, BenefitScore: 30, Nature: NatureMixed},
		{City: CityRef{Name: "b2", Country: "BB"}, BenefitScore: -10, Nature: NatureChallenging},
	}
	out := GroupByCountry(rs)
	require.Len(t, out, 2)
	assert.Equal(t, "AA", out[0].Country)
	assert.Len(t, out[0].Cities, 2)
	assert.Equal(t, 1, out[0].BeneficialCount)
	assert.Equal(t, "BB", out[1].Country)
	assert.Equal(t, 1, out[1].BeneficialCount)
	assert.Equal(t, 1, out[1].ChallengingCount)
}
