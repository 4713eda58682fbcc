package loadbalance

import (
	"slices"
)

// Partition splits domains into size contiguous blocks whose lengths differ
// by at most one. Every domain lands in exactly one block; ranks beyond the
// number of domains get empty blocks.
func Partition(domains []int, size int) [][]int {
	if size < 1 {
		size = 1
	}
	ids := normalize(domains)
	out := make([][]int, size)
	base, extra := len(ids)/size, len(ids)%size
	start := 0
	for r := 0; r < size; r++ {
		n := base
		if r < extra {
			n++
		}
		out[r] = slices.Clone(ids[start : start+n])
		start += n
	}
	return out
}

// PartitionWeighted splits domains into len(weights) contiguous blocks sized
// in proportion to the weights, using largest remainders so the block sizes
// always sum to len(domains). Non-positive weights get nothing unless every
// weight is non-positive, in which case the split is even.
func PartitionWeighted(domains []int, weights []float64) [][]int {
	ids := normalize(domains)
	size := len(weights)
	if size == 0 {
		return nil
	}
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return Partition(ids, size)
	}

	counts := make([]int, size)
	rem := make([]float64, size)
	assigned := 0
	for r, w := range weights {
		if w <= 0 {
			rem[r] = -1
			continue
		}
		share := w / total * float64(len(ids))
		counts[r] = int(share)
		rem[r] = share - float64(counts[r])
		assigned += counts[r]
	}
	order := make([]int, size)
	for r := range order {
		order[r] = r
	}
	// Ties go to the lower rank so every rank computes the same split.
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case rem[a] > rem[b]:
			return -1
		case rem[a] < rem[b]:
			return 1
		}
		return 0
	})
	for i := 0; assigned < len(ids); i++ {
		r := order[i%size]
		if weights[r] <= 0 {
			continue
		}
		counts[r]++
		assigned++
	}

	out := make([][]int, size)
	start := 0
	for r, n := range counts {
		out[r] = slices.Clone(ids[start : start+n])
		start += n
	}
	return out
}

// Chunks splits ids into consecutive groups of at most n.
func Chunks(ids []int, n int) [][]int {
	if n < 1 {
		n = 1
	}
	var out [][]int
	for len(ids) > 0 {
		k := min(n, len(ids))
		out = append(out, slices.Clone(ids[:k]))
		ids = ids[k:]
	}
	return out
}

func normalize(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
