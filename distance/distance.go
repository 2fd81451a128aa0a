package distance

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/vecmem/internal/math32"
)

// ErrUnsupportedMetric is returned by ParseMetric for unknown metric names.
var ErrUnsupportedMetric = errors.New("unsupported metric")

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// Magnitude calculates the L2 norm of v.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(math32.Dot64(v, v)))
}

// Cosine returns the cosine similarity of a and b.
//
// If either vector has zero magnitude the result is 0. The result is not
// clamped to [0, 1]; opposite vectors score -1.
func Cosine(a, b []float32) float32 {
	na := math32.Dot64(a, a)
	nb := math32.Dot64(b, b)
	if na == 0 || nb == 0 {
		return 0
	}

	s := math32.Dot64(a, b) / (math.Sqrt(na) * math.Sqrt(nb))

	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}

	return float32(s)
}

// NegSquaredL2 is SquaredL2 negated so that closer vectors score higher.
func NegSquaredL2(a, b []float32) float32 {
	return -math32.SquaredL2(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := math32.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	math32.ScaleInPlace(v, 1/math32.Sqrt(norm2))
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the similarity metric used for vector comparison.
type Metric int

const (
	MetricCosine Metric = iota
	MetricDot
	MetricL2
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	case MetricL2:
		return "l2"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric resolves a metric by name. The empty string selects cosine.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return MetricCosine, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, name)
	}
}

// Func scores a pair of vectors. Higher is more similar.
type Func func(a, b []float32) float32

// Similarity returns the scorer for m.
func (m Metric) Similarity() (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricDot:
		return Dot, nil
	case MetricL2:
		return NegSquaredL2, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMetric, m)
	}
}
