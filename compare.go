package riverdb

import (
	"cmp"
	"slices"
)

// CompareFunc orders two values the way Compare does.  Operators that sort
// take one so callers can reverse or compose key extraction.
type CompareFunc func(a, b Value) int

// Compare defines a total order over JSON values.  Values of the same kind
// compare within the kind: numbers numerically, strings byte-lexicographically,
// arrays element-wise with length as tiebreaker, and objects as sorted
// key/value pairs.  Values of different kinds order by kind rank:
// null < bool < number < string < array < object.
func Compare(a, b Value) int {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case KindNull:
		return 0
	case KindBool:
		av, bv := a.(bool), b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case KindNumber:
		return cmp.Compare(a.(float64), b.(float64))
	case KindString:
		return cmp.Compare(a.(string), b.(string))
	case KindArray:
		av, bv := a.([]any), b.([]any)
		for i := 0; i < min(len(av), len(bv)); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	case KindObject:
		return compareObjects(a.(map[string]any), b.(map[string]any))
	}
	return 0
}

func compareObjects(a, b map[string]any) int {
	akeys := sortedKeys(a)
	bkeys := sortedKeys(b)
	for i := 0; i < min(len(akeys), len(bkeys)); i++ {
		if c := cmp.Compare(akeys[i], bkeys[i]); c != 0 {
			return c
		}
		if c := Compare(a[akeys[i]], b[bkeys[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(akeys), len(bkeys))
}

func sortedKeys(o map[string]any) []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal reports whether a and b are the same JSON value under Compare's
// ordering.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}
