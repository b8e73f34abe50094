package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// Snapshot is an immutable view of the catalog at LoadedAt. It implements
// capacity.Catalog.
type Snapshot struct {
	LoadedAt time.Time

	// Stale is set when the snapshot outlived its TTL because a refresh failed.
	Stale bool

	factors []Factor
	index   map[capacity.FactorKey]Factor
}

// NewSnapshot indexes factors. Later duplicates of a key replace earlier ones.
func NewSnapshot(factors []Factor, loadedAt time.Time) *Snapshot {
	index := make(map[capacity.FactorKey]Factor, len(factors))
	for _, f := range factors {
		index[f.Key()] = f
	}

	ordered := make([]Factor, 0, len(index))
	for _, f := range index {
		ordered = append(ordered, f)
	}
	sortFactors(ordered)

	return &Snapshot{LoadedAt: loadedAt, factors: ordered, index: index}
}

// Lookup implements capacity.Catalog.
func (s *Snapshot) Lookup(kind capacity.FactorKind, id int) (decimal.Decimal, bool) {
	f, ok := s.index[capacity.FactorKey{Kind: kind, ID: id}]
	if !ok {
		return decimal.Decimal{}, false
	}
	return f.Value, true
}

// Factors returns every factor, ecological first.
func (s *Snapshot) Factors() []Factor {
	out := make([]Factor, len(s.factors))
	copy(out, s.factors)
	return out
}

// Len returns the number of factors.
func (s *Snapshot) Len() int {
	return len(s.factors)
}

// Selected returns the catalog entries for the selected ids, ecological
// first. Unknown and repeated ids are skipped.
func (s *Snapshot) Selected(selection capacity.FactorSelection) []Factor {
	out := make([]Factor, 0, len(selection.Ecological)+len(selection.Management))
	seen := make(map[capacity.FactorKey]struct{})

	add := func(kind capacity.FactorKind, ids []int) {
		for _, id := range ids {
			key := capacity.FactorKey{Kind: kind, ID: id}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if f, ok := s.index[key]; ok {
				out = append(out, f)
			}
		}
	}
	add(capacity.Ecological, selection.Ecological)
	add(capacity.Management, selection.Management)

	sortFactors(out)
	return out
}

func (s *Snapshot) stale() *Snapshot {
	cp := *s
	cp.Stale = true
	return &cp
}

var _ capacity.Catalog = (*Snapshot)(nil)
