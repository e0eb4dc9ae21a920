package variant

// Set holds distinct keys. The zero value is not usable; call NewSet.
type Set struct {
	keys map[Key]struct{}
}

// NewSet returns a set holding the given keys.
func NewSet(keys ...Key) *Set {
	s := &Set{keys: make(map[Key]struct{}, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts k and reports whether it was not already present.
func (s *Set) Add(k Key) bool {
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// Has reports whether k is in the set.
func (s *Set) Has(k Key) bool {
	_, ok := s.keys[k]
	return ok
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	return len(s.keys)
}

// Sorted returns the keys ordered by canonical string.
func (s *Set) Sorted() []Key {
	out := make([]Key, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	Sort(out)
	return out
}

// Partition splits keys into consecutive batches of at most size keys.
// The final batch holds the remainder; an empty input yields no batches.
func Partition(keys []Key, size int) [][]Key {
	if size < 1 {
		size = 1
	}
	batches := make([][]Key, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		batches = append(batches, keys[start:end:end])
	}
	return batches
}
