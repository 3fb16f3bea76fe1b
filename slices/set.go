// Package slices treats small slices as sets. Definition point sequences
// are short enough that linear scans beat any set structure.
package slices

func Contains[L ~[]E, E comparable](l L, x E) bool {
	for _, y := range l {
		if x == y {
			return true
		}
	}

	return false
}

// Subset reports whether every element of a occurs in b.
func Subset[L ~[]E, E comparable](a, b L) bool {
	for _, x := range a {
		if !Contains(b, x) {
			return false
		}
	}

	return true
}
