package service

import (
	"math"
	"sort"

	"teacherdev_backend/internal/model"
)

// DefaultStrengthThreshold is the per-domain percentage at or above which a
// domain counts as a strength. It is unrelated to the overall proficiency bands.
const DefaultStrengthThreshold = 90.0

// Aggregation is the scored summary of one attempt.
type Aggregation struct {
	DomainScores     []model.DomainScore
	OverallScore     float64
	ProficiencyLevel model.ProficiencyLevel
	StrengthDomains  []model.DomainKey
	GapDomains       []model.DomainKey
}

// Aggregate folds question results into domain scores and classifications.
// The overall score weighs every question by its max score, not each domain
// equally. Domains whose max score sums to zero are left out.
// Percentages are rounded to two decimals first; the proficiency bands and
// strengthThreshold compare the rounded value, so 39.996 counts as 40.
func Aggregate(results []model.QuestionResult, strengthThreshold float64) Aggregation {
	type totals struct{ raw, max float64 }
	byDomain := make(map[model.DomainKey]*totals)

	var raw, max float64
	for _, r := range results {
		t, ok := byDomain[r.DomainKey]
		if !ok {
			t = &totals{}
			byDomain[r.DomainKey] = t
		}
		t.raw += r.Score
		t.max += r.MaxScore
		raw += r.Score
		max += r.MaxScore
	}

	keys := make([]model.DomainKey, 0, len(byDomain))
	for k := range byDomain {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	agg := Aggregation{
		DomainScores:    make([]model.DomainScore, 0, len(keys)),
		StrengthDomains: []model.DomainKey{},
		GapDomains:      []model.DomainKey{},
	}
	for _, k := range keys {
		t := byDomain[k]
		if t.max <= 0 {
			continue
		}
		percent := round2(t.raw / t.max * 100)
		agg.DomainScores = append(agg.DomainScores, model.DomainScore{
			DomainKey:    k,
			RawScore:     t.raw,
			MaxScore:     t.max,
			ScorePercent: percent,
		})
		if percent >= strengthThreshold {
			agg.StrengthDomains = append(agg.StrengthDomains, k)
		} else {
			agg.GapDomains = append(agg.GapDomains, k)
		}
	}

	if max > 0 {
		agg.OverallScore = round2(raw / max * 100)
	}
	agg.ProficiencyLevel = ClassifyProficiency(agg.OverallScore)
	return agg
}

// ClassifyProficiency maps an overall percentage onto the fixed bands
// [0,40) Beginner, [40,60) Developing, [60,80) Proficient, [80,100] Advanced.
func ClassifyProficiency(overall float64) model.ProficiencyLevel {
	switch {
	case overall >= 80:
		return model.ProficiencyAdvanced
	case overall >= 60:
		return model.ProficiencyProficient
	case overall >= 40:
		return model.ProficiencyDeveloping
	default:
		return model.ProficiencyBeginner
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
