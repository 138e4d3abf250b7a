// Package fusion implements Fusion & Dedup (C7, spec.md §4.7): weighted
// rank fusion of per-lane results into one deduplicated, ranked source
// set bounded to top_k_final.
//
// This is a pure-function package on purpose — deterministic sort over
// an in-memory slice has no idiomatic third-party replacement in this
// corpus, so it leans on the standard library's sort package alone.
package fusion

import (
	"sort"

	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/source"
)

// DefaultTopKFinal is the Fused Result Set size cap (spec.md §3: "bounded
// to top_k_final (default 10)").
const DefaultTopKFinal = 10

// DefaultWeights are the per-lane combination weights (spec.md §4.7).
var DefaultWeights = Weights{Web: 0.4, Vector: 0.4, KG: 0.2}

// duplicateDiscount is applied to a later duplicate's score before it is
// folded into the kept entry (spec.md §4.7: "added ... with a 0.5
// discount").
const duplicateDiscount = 0.5

// Weights are the per-lane contributions to a source's combined score.
type Weights struct {
	Web    float64
	Vector float64
	KG     float64
}

func (w Weights) forLane(l source.Lane) float64 {
	switch l {
	case source.LaneWeb:
		return w.Web
	case source.LaneVector:
		return w.Vector
	case source.LaneKG:
		return w.KG
	default:
		return 0
	}
}

// Merge combines the lane results into a ranked, deduplicated source
// list truncated to topKFinal. Ordering is stable under identical inputs
// (spec.md §3's Fused Result Set invariant): equal scores break on lane
// order (web, vector, kg) and then on source ID, so the output never
// depends on map iteration or input slice order.
func Merge(results map[lane.Name]lane.Result, weights Weights, topKFinal int) []source.Source {
	if topKFinal <= 0 {
		topKFinal = DefaultTopKFinal
	}

	normalized := normalizeScores(results)

	kept := make(map[string]*source.Source)
	order := make([]string, 0, len(normalized))

	for _, item := range normalized {
		key := source.DedupKey(item.src)
		combined := weights.forLane(item.src.OriginLane) * item.score

		existing, ok := kept[key]
		if !ok {
			s := item.src
			s.Score = combined
			kept[key] = &s
			order = append(order, key)
			continue
		}
		existing.Score += combined * duplicateDiscount
	}

	fused := make([]source.Source, 0, len(order))
	for _, key := range order {
		fused = append(fused, *kept[key])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].OriginLane != fused[j].OriginLane {
			return laneRank(fused[i].OriginLane) < laneRank(fused[j].OriginLane)
		}
		return fused[i].ID < fused[j].ID
	})

	if len(fused) > topKFinal {
		fused = fused[:topKFinal]
	}
	return fused
}

// laneRank orders lanes {web, vector, kg} for tie-breaking (spec.md
// §4.7: "ties broken by lane order {web, vector, kg}, then by id").
func laneRank(l source.Lane) int {
	switch l {
	case source.LaneWeb:
		return 0
	case source.LaneVector:
		return 1
	case source.LaneKG:
		return 2
	default:
		return 3
	}
}

type scored struct {
	src   source.Source
	score float64
}

// normalizeScores rescales each lane's item scores independently to
// [0,1] before weighting, so a lane that happens to emit raw scores on a
// different scale (e.g. cosine similarity vs. a relevance count) doesn't
// dominate the combined ranking. Lane output order is fixed
// (lane.OrderedLanes) so normalizeScores itself contributes no
// nondeterminism.
func normalizeScores(results map[lane.Name]lane.Result) []scored {
	var out []scored
	for _, name := range lane.OrderedLanes {
		res, ok := results[name]
		if !ok || res.Status != lane.StatusOK || len(res.Items) == 0 {
			continue
		}

		min, max := res.Items[0].Score, res.Items[0].Score
		for _, it := range res.Items {
			if it.Score < min {
				min = it.Score
			}
			if it.Score > max {
				max = it.Score
			}
		}

		span := max - min
		for _, it := range res.Items {
			if !it.Valid() {
				continue
			}
			norm := 1.0
			if span > 0 {
				norm = (it.Score - min) / span
			}
			out = append(out, scored{src: it, score: norm})
		}
	}
	return out
}
