package engine

import (
	"spread_go/internal/domain"
)

// VenuePair is an unordered venue pair stored in configured order (A before B).
type VenuePair struct {
	A string `json:"venue_a"`
	B string `json:"venue_b"`
}

func (p VenuePair) String() string {
	return p.A + "/" + p.B
}

// PairIndex lists the instruments that are linear perpetuals on both venues of Pair.
type PairIndex struct {
	Pair        VenuePair `json:"pair"`
	Instruments []string  `json:"instruments"`
}

// CommonInstruments intersects the linear-perpetual symbols of two catalogs.
// The result holds each symbol once; order is unspecified.
func CommonInstruments(a, b []domain.Instrument) []string {
	inA := make(map[string]struct{}, len(a))
	for _, inst := range a {
		if inst.IsLinearPerpetual() {
			inA[inst.Symbol] = struct{}{}
		}
	}

	var common []string
	for _, inst := range b {
		if !inst.IsLinearPerpetual() {
			continue
		}
		if _, ok := inA[inst.Symbol]; ok {
			common = append(common, inst.Symbol)
			delete(inA, inst.Symbol)
		}
	}
	return common
}

// BuildPairIndex builds one PairIndex per venue pair (i < j in venues order).
// Venues missing from catalogs are treated as listing nothing.
func BuildPairIndex(venues []string, catalogs map[string][]domain.Instrument) []PairIndex {
	index := make([]PairIndex, 0, len(venues)*(len(venues)-1)/2)
	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			index = append(index, PairIndex{
				Pair:        VenuePair{A: venues[i], B: venues[j]},
				Instruments: CommonInstruments(catalogs[venues[i]], catalogs[venues[j]]),
			})
		}
	}
	return index
}

// QualifyingInstruments returns the linear-perpetual subset of a catalog.
func QualifyingInstruments(catalog []domain.Instrument) []domain.Instrument {
	out := make([]domain.Instrument, 0, len(catalog))
	for _, inst := range catalog {
		if inst.IsLinearPerpetual() {
			out = append(out, inst)
		}
	}
	return out
}

// IndexSize returns the total number of (pair, instrument) combinations in index.
func IndexSize(index []PairIndex) int {
	n := 0
	for _, p := range index {
		n += len(p.Instruments)
	}
	return n
}
