package riverdb

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Canonical renders v into a canonical byte encoding: object keys are sorted
// so two equal objects produce identical bytes regardless of insertion order.
// The encoding is used for distinct fingerprints and grouped-reduction keys,
// not for interchange.
func Canonical(v Value) []byte {
	return appendCanonical(nil, v)
}

func appendCanonical(b []byte, v Value) []byte {
	switch v := v.(type) {
	case nil:
		return append(b, "null"...)
	case bool:
		return strconv.AppendBool(b, v)
	case float64:
		return append(b, FormatNumber(v)...)
	case string:
		return strconv.AppendQuote(b, v)
	case []any:
		b = append(b, '[')
		for i, elem := range v {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendCanonical(b, elem)
		}
		return append(b, ']')
	case map[string]any:
		b = append(b, '{')
		for i, key := range sortedKeys(v) {
			if i > 0 {
				b = append(b, ',')
			}
			b = strconv.AppendQuote(b, key)
			b = append(b, ':')
			b = appendCanonical(b, v[key])
		}
		return append(b, '}')
	}
	panic("not a JSON value")
}

// Fingerprint hashes the canonical encoding of v.  Two equal values always
// collide; unequal values collide with xxhash's usual probability, so users
// needing exactness must confirm with Equal.
func Fingerprint(v Value) uint64 {
	return xxhash.Sum64(Canonical(v))
}
