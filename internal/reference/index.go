package reference

// WrapIndex maps any integer onto [0, n) so that index -1 is the last frame
// and index n is the first. n must be positive.
func WrapIndex(i, n int) int {
	return ((i % n) + n) % n
}

// WindowIndices returns the w indices ending at end, oldest first.
// Indices before 0 continue from the tail of the sequence, so a window
// ending at 1 with w=4 over n=10 is [8 9 0 1]. w larger than n revisits
// frames.
func WindowIndices(end, w, n int) []int {
	if w <= 0 {
		return []int{}
	}
	out := make([]int, w)
	start := end - w + 1
	for k := range out {
		out[k] = WrapIndex(start+k, n)
	}
	return out
}
