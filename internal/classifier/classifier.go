// Package classifier scores a frame against the template store and produces
// a descending-ranked list of (scene, score) pairs (spec.md §4.6).
package classifier

import (
	"image"
	"math"
	"sort"

	"msagent/internal/histogram"
	"msagent/internal/scenecfg"
	"msagent/internal/templates"
)

// Score pairs a scene name with its combined similarity score.
type Score struct {
	Scene string
	Value float64
}

// Classifier is a pure function of (store, rivals) closed over a frame: the
// same inputs always produce the same ranked output (spec.md §8 "Classifier
// determinism").
type Classifier struct {
	store  *templates.Store
	rivals []scenecfg.Rival
}

// New returns a Classifier bound to store and the rival disambiguation rules.
func New(store *templates.Store, rivals []scenecfg.Rival) *Classifier {
	return &Classifier{store: store, rivals: rivals}
}

// Classify scores frame (already resized to the canonical 400x800 output
// frame) against every scene in the store and returns scores sorted
// descending by value.
func (c *Classifier) Classify(frame image.Image) []Score {
	frameHist := histogram.Calc(frame)

	regionScores := map[string][]float64{}
	scores := make(map[string]float64, len(c.store.Scenes()))

	for _, name := range c.store.Scenes() {
		base := maxCorrel(frameHist, c.store.Full(name))

		defs, regionHists := c.store.Regions(name)
		if len(defs) == 0 {
			scores[name] = base
			continue
		}

		rs := make([]float64, len(defs))
		for i, region := range defs {
			cropHist := histogram.Calc(region.Crop(frame))
			rs[i] = maxCorrel(cropHist, regionHists[i])
		}
		regionScores[name] = rs

		content := rs
		if len(rs) > 1 {
			content = rs[:len(rs)-1]
		}
		avg := mean(content)
		diff := avg - base

		var score float64
		if diff >= 0 {
			score = 0.15*base + 0.85*avg
		} else {
			score = base - 0.70*math.Log(1.0+math.Abs(diff))
		}
		scores[name] = score
	}

	applyRivals(scores, regionScores, c.rivals)

	out := make([]Score, 0, len(scores))
	for name, v := range scores {
		out = append(out, Score{Scene: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Scene < out[j].Scene // deterministic tiebreak
	})
	return out
}

// applyRivals adds each configured rival's disambiguation delta to scores,
// in place, given the per-scene per-region scores already computed by
// Classify (spec.md §4.6 rival disambiguation, §8 "Rival symmetry").
func applyRivals(scores map[string]float64, regionScores map[string][]float64, rivals []scenecfg.Rival) {
	for _, rv := range rivals {
		rs, haveScene := regionScores[rv.Scene]
		if _, haveRival := scores[rv.RivalScene]; !haveRival {
			continue
		}
		if !haveScene {
			continue
		}
		if _, ok := scores[rv.Scene]; !ok {
			continue
		}
		key := rs[rv.KeyRegionIndex]
		others := make([]float64, len(rv.OtherRegionIdxs))
		for i, idx := range rv.OtherRegionIdxs {
			others[i] = rs[idx]
		}
		delta := rv.Weight * (key - mean(others))
		scores[rv.Scene] += delta
	}
}

func maxCorrel(frameHist histogram.Histogram, templates []histogram.Histogram) float64 {
	best := math.Inf(-1)
	for _, t := range templates {
		if v := histogram.CompareCorrel(frameHist, t); v > best {
			best = v
		}
	}
	if len(templates) == 0 {
		return 0
	}
	return best
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// ScoreOf returns the score for name, or -1 if absent, matching the
// source's _score_of helper (spec.md §4.7).
func ScoreOf(scores []Score, name string) float64 {
	for _, s := range scores {
		if s.Scene == name {
			return s.Value
		}
	}
	return -1
}

// TopNames returns the scene names of the first n ranked scores.
func TopNames(scores []Score, n int) []string {
	if n > len(scores) {
		n = len(scores)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = scores[i].Scene
	}
	return names
}
