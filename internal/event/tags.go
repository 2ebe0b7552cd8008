package event

// Tags is an ordered string→string mapping. Order is insertion order and
// stable under Merge: existing keys keep their position, new keys are
// appended. Two Tags are equal (for bucketing purposes, see Fingerprint)
// when they contain the same (key, value) pairs regardless of order.
type Tags struct {
	pairs []tagPair
}

type tagPair struct {
	Key, Value string
}

// NewTags builds a Tags value from a plain map. Since a map has no inherent
// order, keys are sorted for determinism; callers that care about a specific
// wire order should build Tags incrementally with Set instead.
func NewTags(m map[string]string) Tags {
	var t Tags
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		t.Set(k, m[k])
	}
	return t
}

// Set inserts or updates key. New keys are appended; existing keys are
// updated in place, preserving their original position.
func (t *Tags) Set(key, value string) {
	for i := range t.pairs {
		if t.pairs[i].Key == key {
			t.pairs[i].Value = value
			return
		}
	}
	t.pairs = append(t.pairs, tagPair{Key: key, Value: value})
}

// Get returns the value for key and whether it was present.
func (t Tags) Get(key string) (string, bool) {
	for _, p := range t.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Len returns the number of tag pairs.
func (t Tags) Len() int { return len(t.pairs) }

// Range calls f for every tag pair in insertion order.
func (t Tags) Range(f func(key, value string)) {
	for _, p := range t.pairs {
		f(p.Key, p.Value)
	}
}

// Merge returns a new Tags containing t's pairs followed by any pairs from
// other whose keys are not already present in t (new keys appended). A key
// present in both keeps its position from t but takes other's value.
func (t Tags) Merge(other Tags) Tags {
	out := Tags{pairs: append([]tagPair(nil), t.pairs...)}
	for _, p := range other.pairs {
		out.Set(p.Key, p.Value)
	}
	return out
}

// Clone returns an independent copy of t.
func (t Tags) Clone() Tags {
	return Tags{pairs: append([]tagPair(nil), t.pairs...)}
}

// Equal reports whether t and other contain the same (key, value) pairs,
// independent of order.
func (t Tags) Equal(other Tags) bool {
	if len(t.pairs) != len(other.pairs) {
		return false
	}
	for _, p := range t.pairs {
		v, ok := other.Get(p.Key)
		if !ok || v != p.Value {
			return false
		}
	}
	return true
}

// Fingerprint returns a deterministic string encoding of the tag set,
// suitable for use as (part of) a bucket entry key. Sorted by key so that
// set-equal tag sets always fingerprint identically regardless of
// insertion order.
func (t Tags) Fingerprint() string {
	if len(t.pairs) == 0 {
		return ""
	}
	keys := make([]string, len(t.pairs))
	byKey := make(map[string]string, len(t.pairs))
	for i, p := range t.pairs {
		keys[i] = p.Key
		byKey[p.Key] = p.Value
	}
	sortStrings(keys)

	buf := make([]byte, 0, 32*len(keys))
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, byKey[k]...)
	}
	return string(buf)
}

// sortStrings is a tiny insertion sort; tag sets are small (single digits
// to low tens of entries) so this avoids pulling in sort.Strings for what
// is, in practice, a handful of comparisons on the hottest ingest path.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
