package catalog

import (
	"math"
	"slices"
	"sort"
)

// Match pairs a record of one set with a record of another. Distance is in
// pixels. A side is nil when its record could not be resolved.
type Match[R1, R2 any] struct {
	First    *R1
	Second   *R2
	Distance float64
}

// Position extracts the pixel position of a record.
type Position[R any] func(*R) (x, y float64)

// byY orders the indices of v by increasing y.
func byY[R any](v []*R, pos Position[R]) ([]int, []float64) {
	ys := make([]float64, len(v))
	idx := make([]int, len(v))
	for i, r := range v {
		_, ys[i] = pos(r)
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case ys[a] < ys[b]:
			return -1
		case ys[a] > ys[b]:
			return 1
		}
		return 0
	})
	return idx, ys
}

// MatchXY returns every pair (r1, r2) from v1 and v2 whose positions are at
// most radius apart, in v1 order. With closest set each r1 keeps only its
// nearest partner.
func MatchXY[R1, R2 any](v1 []*R1, pos1 Position[R1], v2 []*R2, pos2 Position[R2], radius float64, closest bool) []Match[R1, R2] {
	if radius < 0 || len(v1) == 0 || len(v2) == 0 {
		return nil
	}
	idx, ys := byY(v2, pos2)
	var out []Match[R1, R2]
	for _, r1 := range v1 {
		x1, y1 := pos1(r1)
		lo := sort.Search(len(idx), func(i int) bool { return ys[idx[i]] >= y1-radius })
		best := -1
		bestDist := math.Inf(1)
		for _, j := range idx[lo:] {
			if ys[j] > y1+radius {
				break
			}
			x2, y2 := pos2(v2[j])
			d := math.Hypot(x2-x1, y2-y1)
			if d > radius {
				continue
			}
			if !closest {
				out = append(out, Match[R1, R2]{First: r1, Second: v2[j], Distance: d})
			} else if d < bestDist {
				best, bestDist = j, d
			}
		}
		if closest && best >= 0 {
			out = append(out, Match[R1, R2]{First: r1, Second: v2[best], Distance: bestDist})
		}
	}
	return out
}

// SelfMatchXY returns every pair of distinct records of v at most radius
// apart. With symmetric set each pair is reported in both orders.
func SelfMatchXY[R any](v []*R, pos Position[R], radius float64, symmetric bool) []Match[R, R] {
	if radius < 0 {
		return nil
	}
	idx, ys := byY(v, pos)
	var out []Match[R, R]
	for n, i := range idx {
		xi, yi := pos(v[i])
		for _, j := range idx[n+1:] {
			if ys[j]-yi > radius {
				break
			}
			xj, yj := pos(v[j])
			d := math.Hypot(xj-xi, yj-yi)
			if d > radius {
				continue
			}
			out = append(out, Match[R, R]{First: v[i], Second: v[j], Distance: d})
			if symmetric {
				out = append(out, Match[R, R]{First: v[j], Second: v[i], Distance: d})
			}
		}
	}
	return out
}
