package drafty

import (
	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// graphemes is a container holding lengths of grapheme clusters in a string.
type graphemes struct {
	// The original string.
	original string

	// Sizes of grapheme clusters within the original string.
	sizes []int
}

// prepareGraphemes splits the string into grapheme clusters and saves their lengths.
func prepareGraphemes(str string) *graphemes {
	sizes := make([]int, 0, len(str))
	for state, remaining, cluster := -1, str, ""; len(remaining) > 0; {
		cluster, remaining, _, state = uniseg.StepString(remaining, state)
		sizes = append(sizes, len(cluster))
	}

	return &graphemes{
		original: str,
		sizes:    sizes,
	}
}

// length returns the number of grapheme clusters in the original string.
func (g *graphemes) length() int {
	if g == nil {
		return 0
	}
	return len(g.sizes)
}

// substr returns the part of the original string from grapheme 'start' to 'end'.
func (g *graphemes) substr(start, end int) string {
	if end > len(g.sizes) {
		end = len(g.sizes)
	}
	if start >= end {
		return ""
	}
	s := 0
	for i := 0; i < start; i++ {
		s += g.sizes[i]
	}
	e := s
	for i := start; i < end; i++ {
		e += g.sizes[i]
	}
	return g.original[s:e]
}

// gcLength returns the number of grapheme clusters in the string.
func gcLength(str string) int {
	return uniseg.GraphemeClusterCount(str)
}

// gcOffset converts a count of grapheme clusters into a byte offset in the string.
func gcOffset(str string, count int) int {
	offset := 0
	for state, remaining, cluster := -1, str, ""; len(remaining) > 0 && count > 0; count-- {
		cluster, remaining, _, state = uniseg.StepString(remaining, state)
		offset += len(cluster)
	}
	return offset
}

// gcRange converts a byte range of the string into a range of grapheme clusters.
func gcRange(str string, at, length int) (int, int) {
	return gcLength(str[:at]), gcLength(str[at : at+length])
}

// normalize converts the string to Unicode normalization form C.
func normalize(str string) string {
	return norm.NFC.String(str)
}
