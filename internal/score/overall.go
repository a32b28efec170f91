package score

import (
	"math"
	"sort"

	"scout-api/internal/config"
)

// OverallOutcome：跨类别综合结果
type OverallOutcome struct {
	Beneficial       []OverallCityRanking
	Challenging      []OverallCityRanking
	TotalBeneficial  int
	TotalChallenging int
}

// AggregateOverall：把各类别的完整（未截断）分组汇成综合榜
// totalScore = Σ有利类别分 − 0.5·Σ|挑战类别分|；混合类别不进总分但保留在 perCategory；
// averageScore 按出现类别数平均；城市按 有利类别数 > 挑战类别数 归组，综合榜再做动态截断。
func AggregateOverall(outcomes []CategoryOutcome, cfg config.Scoring) OverallOutcome {
	byCity := make(map[CityRef]*OverallCityRanking)
	add := func(cat Category, r CityRanking) {
		a, ok := byCity[r.City]
		if !ok {
			a = &OverallCityRanking{City: r.City}
			byCity[r.City] = a
		}
		a.PerCategory = append(a.PerCategory, CategoryScore{
			Category: cat,
			Score:    r.BenefitScore,
			Nature:   r.Nature,
		})
		switch r.Nature {
		case NatureBeneficial:
			a.TotalScore += r.BenefitScore
			a.BeneficialCategoryCount++
		case NatureChallenging:
			a.TotalScore -= 0.5 * math.Abs(r.BenefitScore)
			a.ChallengingCategoryCount++
		}
	}
	for _, oc := range outcomes {
		for _, r := range oc.Beneficial {
			add(oc.Category, r)
		}
		for _, r := range oc.Challenging {
			add(oc.Category, r)
		}
	}

	catOrder := make(map[Category]int, len(AllCategories))
	for i, c := range AllCategories {
		catOrder[c] = i
	}
	var ben, chal []OverallCityRanking
	for _, a := range byCity {
		if n := len(a.PerCategory); n > 0 {
			a.AverageScore = a.TotalScore / float64(n)
		}
		sort.Slice(a.PerCategory, func(i, j int) bool {
			return catOrder[a.PerCategory[i].Category] < catOrder[a.PerCategory[j].Category]
		})
		if a.BeneficialCategoryCount > a.ChallengingCategoryCount {
			ben = append(ben, *a)
		} else {
			chal = append(chal, *a)
		}
	}
	sort.Slice(ben, func(i, j int) bool { return lessOverall(ben[j], ben[i]) })
	sort.Slice(chal, func(i, j int) bool { return lessOverall(chal[i], chal[j]) })

	out := OverallOutcome{
		TotalBeneficial:  len(ben),
		TotalChallenging: len(chal),
	}
	out.Beneficial = ben[:TopK(len(ben), cfg)]
	out.Challenging = chal[:TopK(len(chal), cfg)]
	return out
}

func lessOverall(a, b OverallCityRanking) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore < b.TotalScore
	}
	if a.City.Name != b.City.Name {
		return a.City.Name < b.City.Name
	}
	return a.City.Country < b.City.Country
}

// GroupByCountry：类别榜单按国家聚合
// 国家内保持传入次序，国家次序取各自首城（即最佳城市）的先后
func GroupByCountry(rankings []CityRanking) []RankedCountry {
	idx := make(map[string]int)
	var out []RankedCountry
	for _, r := range rankings {
		i, ok := idx[r.City.Country]
		if !ok {
			i = len(out)
			idx[r.City.Country] = i
			out = append(out, RankedCountry{Country: r.City.Country})
		}
		out[i].Cities = append(out[i].Cities, r)
		switch r.Nature {
		case NatureBeneficial:
			out[i].BeneficialCount++
		case NatureChallenging:
			out[i].ChallengingCount++
		}
	}
	return out
}
