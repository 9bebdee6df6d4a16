// Package score holds the named scorers that map two subjects onto [0,1].
package score

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"receipts/internal/domain"
)

const DefaultName = "digest"

var ErrMalformedInput = errors.New("malformed scorer input")

var registry = map[string]func() domain.Scorer{
	"digest":  func() domain.Scorer { return Digest{} },
	"overlap": func() domain.Scorer { return Overlap{} },
	"entropy": func() domain.Scorer { return NewEntropy(DefaultBins) },
}

// ByName returns the scorer registered under name. An empty name selects
// the default scorer.
func ByName(name string) (domain.Scorer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultName
	}
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown scorer %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return build(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clipped runs s and clamps the result into [0,1].
func Clipped(s domain.Scorer, a, b []byte) (float64, error) {
	v, err := s.Score(a, b)
	if err != nil {
		return 0, err
	}
	return domain.ClipScore(v), nil
}
