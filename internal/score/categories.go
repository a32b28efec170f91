package score

// 类别相关性表：行星×角度在各生活类别下的有利/挑战归属
// 背景：来自占星语义的固定映射，属于产品契约；调整会改变所有用户的榜单。
// 约束：Pluto:MC 对事业是强势而有利的，刻意不在挑战表中。

type lineKey struct{ planet, angle string }

var beneficialTable = map[Category]map[lineKey]bool{
	CategoryCareer: keys(
		"Sun:MC", "Jupiter:MC", "Mercury:MC", "Venus:MC", "Mars:MC", "Saturn:MC", "Pluto:MC",
		"Sun:ASC", "Mars:ASC", "Jupiter:ASC", "Mercury:ASC",
	),
	CategoryLove: keys(
		"Venus:DSC", "Sun:DSC", "Jupiter:DSC", "Moon:DSC",
		"Venus:ASC", "Sun:ASC", "Mars:ASC", "Jupiter:ASC",
	),
	CategoryHealth: keys(
		"Sun:ASC", "Jupiter:ASC", "Moon:ASC", "Mars:ASC",
		"Venus:IC", "Jupiter:MC", "Venus:MC", "Sun:IC", "Moon:IC",
	),
	CategoryHome: keys(
		"Venus:IC", "Moon:IC", "Jupiter:IC", "Sun:IC", "Saturn:IC",
		"Venus:ASC", "Moon:ASC", "Jupiter:ASC", "Mercury:IC",
	),
	CategoryWellbeing: keys(
		"Venus:ASC", "Venus:IC", "Venus:DSC",
		"Jupiter:ASC", "Jupiter:MC", "Jupiter:IC", "Jupiter:DSC",
		"Moon:IC", "Moon:ASC", "Sun:ASC", "Sun:IC", "Neptune:ASC",
	),
	CategoryWealth: keys(
		"Jupiter:MC", "Jupiter:IC", "Jupiter:ASC", "Jupiter:DSC",
		"Venus:MC", "Venus:ASC", "Sun:MC", "Sun:ASC",
		"Mercury:MC", "Mercury:ASC", "Pluto:MC",
	),
}

var challengingTable = map[Category]map[lineKey]bool{
	CategoryCareer: keys("Neptune:MC", "Uranus:MC", "Moon:MC"),
	CategoryLove:   keys("Saturn:DSC", "Pluto:DSC", "Mars:DSC", "Uranus:DSC", "Neptune:DSC"),
	CategoryHealth: keys("Saturn:ASC", "Saturn:MC", "Neptune:ASC", "Pluto:ASC", "Uranus:ASC"),
	CategoryHome:   keys("Uranus:IC", "Neptune:IC", "Pluto:IC", "Saturn:IC", "Mars:IC"),
	CategoryWellbeing: keys(
		"Saturn:ASC", "Saturn:MC", "Neptune:MC", "Pluto:ASC", "Pluto:MC", "Mars:ASC",
	),
	CategoryWealth: keys("Neptune:MC", "Neptune:IC", "Uranus:MC", "Uranus:IC", "Saturn:ASC"),
}

func keys(pairs ...string) map[lineKey]bool {
	m := make(map[lineKey]bool, len(pairs))
	for _, p := range pairs {
		for i := 0; i < len(p); i++ {
			if p[i] == ':' {
				m[lineKey{p[:i], p[i+1:]}] = true
				break
			}
		}
	}
	return m
}

// IsBeneficialFor：线是否列入类别有利表
func IsBeneficialFor(planet, angle string, cat Category) bool {
	return beneficialTable[cat][lineKey{planet, angle}]
}

// IsChallengingFor：线是否列入类别挑战表
func IsChallengingFor(planet, angle string, cat Category) bool {
	return challengingTable[cat][lineKey{planet, angle}]
}

// RelevantFor：线与类别是否相关（有利或挑战）
func RelevantFor(planet, angle string, cat Category) bool {
	return IsBeneficialFor(planet, angle, cat) || IsChallengingFor(planet, angle, cat)
}
