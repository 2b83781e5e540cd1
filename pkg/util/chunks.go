package util

// SplitIntoChunks splits s into consecutive slices of at most n elements.
// The chunks share s's backing array.
func SplitIntoChunks[T any](s []T, n int) [][]T {
	if n <= 0 || len(s) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(s)+n-1)/n)
	for start := 0; start < len(s); start += n {
		end := min(start+n, len(s))
		out = append(out, s[start:end:end])
	}
	return out
}
