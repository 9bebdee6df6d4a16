package score

import "unicode/utf8"

// Overlap is the share of distinct characters the two subjects have in
// common, relative to the longer subject.
type Overlap struct{}

func (Overlap) Name() string { return "overlap" }

func (Overlap) Score(a, b []byte) (float64, error) {
	longest := max(utf8.RuneCount(a), utf8.RuneCount(b))
	if longest == 0 {
		return 0, nil
	}
	seen := make(map[rune]struct{})
	for _, r := range string(a) {
		seen[r] = struct{}{}
	}
	common := 0
	for _, r := range string(b) {
		if _, ok := seen[r]; ok {
			common++
			delete(seen, r)
		}
	}
	return float64(common) / float64(longest), nil
}
