package core

// Zip pairs left[i] with right[i] positionally and pads the shorter side with
// zero values. It always yields at least one pair, so a requirement with no
// bugs and no L3/L4 links still produces exactly one row.
//
// The caller owns the ordering of both slices; Zip never sorts or cross-joins.
func Zip[L, R any](left []L, right []R) []Pair[L, R] {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	if n == 0 {
		n = 1
	}

	pairs := make([]Pair[L, R], n)
	for i := range pairs {
		if i < len(left) {
			pairs[i].Left = left[i]
			pairs[i].HasLeft = true
		}
		if i < len(right) {
			pairs[i].Right = right[i]
			pairs[i].HasRight = true
		}
	}
	return pairs
}

// Pair is one positional pairing produced by Zip.
type Pair[L, R any] struct {
	Left     L
	Right    R
	HasLeft  bool
	HasRight bool
}
