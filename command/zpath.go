package command

import "slices"

// ZOrder is a single per-ancestor ordering index.
type ZOrder int16

// ZPath is the ordered sequence of ancestor z-orders of a drawn node.
// Missing trailing entries compare equal to zero, so [0, 1] and [0, 1, 0]
// denote the same path.
type ZPath []ZOrder

// Compare orders two paths lexicographically, treating entries past the end
// of the shorter path as zero. It returns -1, 0 or +1.
func (p ZPath) Compare(o ZPath) int {
	n := max(len(p), len(o))
	for i := range n {
		var l, r ZOrder
		if i < len(p) {
			l = p[i]
		}
		if i < len(o) {
			r = o[i]
		}
		if l != r {
			if l < r {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether p sorts before o.
func (p ZPath) Less(o ZPath) bool {
	return p.Compare(o) < 0
}

// Trim returns p without trailing zero entries. The result aliases p.
func (p ZPath) Trim() ZPath {
	n := len(p)
	for n > 0 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

// Clone returns a trimmed copy of p that does not alias it.
func (p ZPath) Clone() ZPath {
	t := p.Trim()
	if len(t) == 0 {
		return nil
	}
	return slices.Clone(t)
}
