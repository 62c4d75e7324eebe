package worldmap

// similarity computes the Ratcliff/Obershelp ratio between two strings:
// twice the number of matching characters (summed over recursively
// found longest common substrings) divided by the total length. 1.0
// means identical, 0.0 means nothing in common.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	matched := matchingChars(a, b)
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

// longestMatch finds the longest common substring, preferring the
// earliest occurrence in a, then in b.
func longestMatch(a, b string) (ai, bi, size int) {
	runLen := make(map[int]int)
	for i := 0; i < len(a); i++ {
		newRun := make(map[int]int)
		for j := 0; j < len(b); j++ {
			if a[i] != b[j] {
				continue
			}
			k := runLen[j-1] + 1
			newRun[j] = k
			if k > size {
				ai, bi, size = i-k+1, j-k+1, k
			}
		}
		runLen = newRun
	}
	return ai, bi, size
}
