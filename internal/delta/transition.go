package delta

import (
	"fmt"
)

// Transition codes.
//
// A transition is the ordered class pair (origin, dest). Codes are the
// bijection code = origin*K + dest for classes in [0, K). K defaults to
// 100, which keeps codes readable for two-digit land-cover legends
// (forest 3 to pasture 15 encodes as 315) and fits comfortably in the
// uint16 code grid for any K up to 256.

// CategoryOther is the category for transitions not named by the table.
const CategoryOther = "other"

// EncodeTransition returns the code for an (origin, dest) class pair.
func EncodeTransition(origin, dest, k int) int {
	return origin*k + dest
}

// DecodeTransition splits a code back into its (origin, dest) pair.
func DecodeTransition(code, k int) (origin, dest int) {
	return code / k, code % k
}

// TransitionTable classifies transition codes into named categories
// (loss, regeneration, ...). It is data driven, with the category lists in
// configuration rather than code, and read-only after construction.
type TransitionTable struct {
	k        int
	category map[int]string
}

// NewTransitionTable builds a table from category name to transition
// codes. Codes must decode to classes within [0, k); duplicate codes
// across categories are rejected because a transition has one category.
func NewTransitionTable(k int, categories map[string][]int) (*TransitionTable, error) {
	if k < 2 || k > 256 {
		return nil, fmt.Errorf("class space must be in [2, 256], got %d", k)
	}
	t := &TransitionTable{k: k, category: make(map[int]string)}
	for name, codes := range categories {
		for _, code := range codes {
			origin, dest := DecodeTransition(code, k)
			if origin < 0 || origin >= k || dest < 0 || dest >= k {
				return nil, fmt.Errorf("category %q: code %d decodes outside class space %d", name, code, k)
			}
			if origin == dest {
				return nil, fmt.Errorf("category %q: code %d is not a transition (origin == dest)", name, code)
			}
			if prev, ok := t.category[code]; ok && prev != name {
				return nil, fmt.Errorf("code %d assigned to both %q and %q", code, prev, name)
			}
			t.category[code] = name
		}
	}
	return t, nil
}

// K returns the class-space size the table was built for.
func (t *TransitionTable) K() int {
	return t.k
}

// Category returns the category for a transition code, or CategoryOther
// when the table does not name it.
func (t *TransitionTable) Category(code int) string {
	if name, ok := t.category[code]; ok {
		return name
	}
	return CategoryOther
}
