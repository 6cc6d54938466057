package prompt

import (
	"math"
	"slices"
	"sort"
	"time"
)

// Scoring weights of SelectBest.
const (
	performanceWeight = 0.4
	successWeight     = 0.3
	taskTypeBonus     = 20.0
	recencyWindowDays = 10.0
)

// Score returns the selection score of t for tc at now.
func Score(t *Template, tc TaskContext, now time.Time) float64 {
	score := performanceWeight*t.Metrics.PerformanceScore + successWeight*t.Metrics.SuccessRate
	if tc.Type != "" && slices.Contains(t.Applicability.TaskTypes, tc.Type) {
		score += taskTypeBonus
	}
	return score + recencyBonus(t.Metrics.LastUsed, now)
}

// recencyBonus decays linearly from 10 to 0 over the ten days after the
// last use. A last use in the future counts as now.
func recencyBonus(lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() {
		return 0
	}
	days := math.Max(0, now.Sub(lastUsed).Hours()/24)
	return math.Max(0, recencyWindowDays-days)
}

// SelectBest returns the highest scoring template. Ties keep the input
// order. Returns nil for an empty list.
func SelectBest(templates []*Template, tc TaskContext, now time.Time) *Template {
	switch len(templates) {
	case 0:
		return nil
	case 1:
		return templates[0]
	}

	type scored struct {
		t     *Template
		score float64
	}
	ranked := make([]scored, len(templates))
	for i, t := range templates {
		ranked[i] = scored{t: t, score: Score(t, tc, now)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked[0].t
}
