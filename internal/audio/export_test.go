package audio

// Export internal functions for testing.
// This file is only compiled during tests (suffix _test.go).

// PlanWindows exports planWindows as [start, end] pairs.
func PlanWindows(total, segment float64) [][2]float64 {
	var out [][2]float64
	for _, w := range planWindows(total, segment) {
		out = append(out, [2]float64{w.start, w.end})
	}
	return out
}

// DecodeArgs exports decodeArgs for testing.
func DecodeArgs(input, output string, start, end float64) []string {
	return decodeArgs(input, output, window{start: start, end: end})
}
