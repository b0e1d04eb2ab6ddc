// Package fusion combines a dense (vector) hit list and a sparse (keyword)
// hit list into one ranked list, weighting each source by how "peaked" —
// how informative — its own score distribution is.
package fusion

import (
	"math"
	"sort"
)

const epsilon = 1e-6

// Hit is one scored result from a single backend, prior to fusion.
type Hit struct {
	ID    int64
	Score float64
}

// FusedHit is one result after fusion, score normalized to [0, 1].
type FusedHit struct {
	ID    int64
	Score float64
}

// Fuse combines dense and sparse hit lists into a single ranked list. Each
// side's score distribution is max-normalized, its Gini coefficient
// measures how peaked (informative) it is, and the two sides are blended
// in proportion to their Gini share, clamped to keep neither channel
// silenced nor dominant.
func Fuse(dense, sparse []Hit) ([]FusedHit, error) {
	ids, sd, ss := align(dense, sparse)
	if len(ids) == 0 {
		return []FusedHit{}, nil
	}

	for i, v := range sd {
		if v < 0 {
			sd[i] = 0
		}
	}

	maxD := maxOf(sd)
	maxS := maxOf(ss)
	normalize(sd, maxD)
	normalize(ss, maxS)

	gD, err := gini(sd)
	if err != nil {
		return nil, err
	}
	gS, err := gini(ss)
	if err != nil {
		return nil, err
	}

	wD, wS := weights(gD, gS, maxD, maxS)

	fused := make([]FusedHit, len(ids))
	for i, id := range ids {
		f := wD*math.Exp(sd[i]) + wS*math.Exp(ss[i]) + math.Sqrt(sd[i]*ss[i])
		f /= math.E + 1
		fused[i] = FusedHit{ID: id, Score: clamp(f, 0, 1)}
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	return fused, nil
}

// align builds the union of ids (dense ids first, in order of first
// appearance, then sparse ids not already seen) and aligned score slices,
// 0 where an id is absent from a given side.
func align(dense, sparse []Hit) (ids []int64, sd, ss []float64) {
	denseScore := make(map[int64]float64, len(dense))
	sparseScore := make(map[int64]float64, len(sparse))
	seen := make(map[int64]struct{}, len(dense)+len(sparse))

	for _, h := range dense {
		denseScore[h.ID] = h.Score
		if _, ok := seen[h.ID]; !ok {
			seen[h.ID] = struct{}{}
			ids = append(ids, h.ID)
		}
	}
	for _, h := range sparse {
		sparseScore[h.ID] = h.Score
		if _, ok := seen[h.ID]; !ok {
			seen[h.ID] = struct{}{}
			ids = append(ids, h.ID)
		}
	}

	sd = make([]float64, len(ids))
	ss = make([]float64, len(ids))
	for i, id := range ids {
		sd[i] = denseScore[id]
		ss[i] = sparseScore[id]
	}
	return ids, sd, ss
}

func maxOf(x []float64) float64 {
	var m float64
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}

func normalize(x []float64, max float64) {
	if max == 0 {
		return
	}
	for i := range x {
		x[i] /= max
	}
}

// weights splits the fusion weight between dense and sparse by their
// relative Gini share, scaled by each side's own max score so a side with
// no signal at all contributes little even if its (empty) distribution
// happens to have a nonzero Gini, then clamps to [0.2, 0.8] and
// renormalizes so the two always sum to 1.
func weights(gD, gS, maxD, maxS float64) (wD, wS float64) {
	total := gD + gS
	if total > 0 {
		scale := maxD + maxS + epsilon
		wD = (gD / total) * (maxD / scale)
		wS = (gS / total) * (maxS / scale)
	} else {
		wD, wS = 0.5, 0.5
	}

	wD = clamp(wD, 0.2, 0.8)
	wS = clamp(wS, 0.2, 0.8)
	sum := wD + wS
	return wD / sum, wS / sum
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
