package score

import (
	"math"
	"sort"

	"scout-api/internal/config"
)

// CategoryOutcome：单类别评分结果
// Beneficial/Challenging 为截断前的完整分组（聚合层需要全量分数），
// Rankings 为对外返回的截断榜单（有利在前）。
type CategoryOutcome struct {
	Category         Category
	Beneficial       []CityRanking
	Challenging      []CityRanking
	Rankings         []CityRanking
	TotalBeneficial  int
	TotalChallenging int
}

// RankCategory：从城市影响集生成类别榜单
// 无影响的城市直接剔除；净分数同时落在两类线影响下的城市只按净值归入一组，绝不重复出现。
func RankCategory(sets []CityInfluences, cat Category, cfg config.Scoring) CategoryOutcome {
	var ben, chal []CityRanking
	for _, s := range sets {
		if len(s.Influences) == 0 {
			continue
		}
		r := scoreCity(s, cfg)
		if r.BenefitScore >= 0 {
			ben = append(ben, r)
		} else {
			chal = append(chal, r)
		}
	}
	// 有利组分数降序，挑战组升序（最具挑战者在前）；同分按城市身份定序保证幂等
	sort.Slice(ben, func(i, j int) bool { return lessRanking(ben[j], ben[i]) })
	sort.Slice(chal, func(i, j int) bool { return lessRanking(chal[i], chal[j]) })

	out := CategoryOutcome{
		Category:         cat,
		Beneficial:       ben,
		Challenging:      chal,
		TotalBeneficial:  len(ben),
		TotalChallenging: len(chal),
	}
	kb := TopK(len(ben), cfg)
	kc := TopK(len(chal), cfg)
	out.Rankings = append(append([]CityRanking{}, ben[:kb]...), chal[:kc]...)
	return out
}

func lessRanking(a, b CityRanking) bool {
	if a.BenefitScore != b.BenefitScore {
		return a.BenefitScore < b.BenefitScore
	}
	if a.City.Name != b.City.Name {
		return a.City.Name < b.City.Name
	}
	return a.City.Country < b.City.Country
}

// scoreCity：单城评分
// benefit = Σ(weight_i·dim_i)·20 + min(count−1,3)·10·sign(Σ)，多线加成随净符号同向放大；
// intensity 取绝对值和，volatility 为正负两侧加权和的几何均值×2，混合影响越均衡越高。
func scoreCity(s CityInfluences, cfg config.Scoring) CityRanking {
	var sum, absSum, pos, neg float64
	for _, inf := range s.Influences {
		sum += inf.Weight
		absSum += math.Abs(inf.Weight)
		if inf.Weight > 0 {
			pos += inf.Weight
		} else {
			neg += -inf.Weight
		}
	}
	benefit := sum * 20
	bonus := float64(minInt(len(s.Influences)-1, 3)) * 10
	if sum > 0 {
		benefit += bonus
	} else if sum < 0 {
		benefit -= bonus
	}
	intensity := absSum * 20
	volatility := 2 * math.Sqrt(pos*neg) * 20

	nature := NatureMixed
	if benefit >= cfg.NatureThreshold {
		nature = NatureBeneficial
	} else if benefit <= -cfg.NatureThreshold {
		nature = NatureChallenging
	}

	top := s.Influences
	if len(top) > 3 {
		top = top[:3]
	}
	return CityRanking{
		City:            s.City,
		BenefitScore:    benefit,
		IntensityScore:  intensity,
		VolatilityScore: volatility,
		Nature:          nature,
		TopInfluences:   append([]LineInfluence{}, top...),
		MinDistanceKm:   s.MinDistanceKm,
		InfluenceCount:  len(s.Influences),
	}
}

// TopK：动态榜单截断
// n ≤ 下限时整组保留；更大时取 max(下限, ceil(比例·n))，小结果集完整、大结果集有界
func TopK(n int, cfg config.Scoring) int {
	if n <= cfg.TopKFloor {
		return n
	}
	k := int(math.Ceil(cfg.TopKFraction * float64(n)))
	if k < cfg.TopKFloor {
		k = cfg.TopKFloor
	}
	if k > n {
		k = n
	}
	return k
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
