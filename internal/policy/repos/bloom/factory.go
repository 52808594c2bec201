package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// Factory sizes and constructs Filter instances from a dataset capacity and
// target false-positive rate, so the Refresh Controller can rebuild a
// differently-sized filter without repeating the sizing math inline.
type Factory interface {
	New(capacity uint64, fpRate float64) Filter
}

type factory struct{}

// NewFactory returns a Factory backed by the standard m/k sizing formulas.
func NewFactory() Factory { return factory{} }

// New constructs a new Filter sized for the given dataset capacity and
// target false-positive rate (spec.md §4.3).
func (factory) New(capacity uint64, fpRate float64) Filter {
	m, k := size(capacity, fpRate)
	bf := bitsbloom.New(uint(m), uint(k))
	return newFilter(bf, capacity)
}
