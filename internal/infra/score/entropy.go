package score

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const DefaultBins = 32

// maxUnscaled is the largest magnitude binned as is; lo+1 is still exact.
const maxUnscaled = 1e15

// Entropy compares the Shannon entropy of two numeric series binned over
// their shared range. Identical distributions score 1.
type Entropy struct {
	bins int
}

func NewEntropy(bins int) Entropy {
	if bins < 2 {
		bins = DefaultBins
	}
	return Entropy{bins: bins}
}

func (Entropy) Name() string { return "entropy" }

func (e Entropy) Score(a, b []byte) (float64, error) {
	xa, err := ParseSeries(string(a))
	if err != nil {
		return 0, err
	}
	xb, err := ParseSeries(string(b))
	if err != nil {
		return 0, err
	}
	lo, hi := span(xa, xb)
	if m := math.Max(math.Abs(lo), math.Abs(hi)); m > maxUnscaled {
		// Scaling both series leaves their bin counts unchanged and keeps
		// the dividers finite and strictly above every value.
		xa = scaled(xa, m)
		xb = scaled(xb, m)
		lo, hi = span(xa, xb)
	}
	if hi > lo {
		hi = math.Nextafter(hi, math.Inf(1))
	} else {
		hi = lo + 1
	}
	dividers := floats.Span(make([]float64, e.bins+1), lo, hi)
	dividers[e.bins] = hi

	ha := e.entropy(xa, dividers)
	hb := e.entropy(xb, dividers)
	return 1 - math.Abs(hb-ha)/math.Log(float64(e.bins)), nil
}

func span(xa, xb []float64) (lo, hi float64) {
	return math.Min(floats.Min(xa), floats.Min(xb)), math.Max(floats.Max(xa), floats.Max(xb))
}

func scaled(x []float64, m float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / m
	}
	return out
}

func (e Entropy) entropy(x, dividers []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	counts := stat.Histogram(nil, dividers, sorted, nil)
	floats.Scale(1/floats.Sum(counts), counts)
	return stat.Entropy(counts)
}

// ParseSeries reads comma or whitespace separated finite numbers.
func ParseSeries(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrMalformedInput)
	}
	out := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a finite number", ErrMalformedInput, field)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatSeries renders a numeric series the way subjects store it.
func FormatSeries(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
