package keys

// Entry pairs a key id with its derived key material.
type Entry struct {
	KeyID string
	Key   []byte
}

// Set is an immutable snapshot of the keys loadable for decryption.
// Snapshots are rebuilt wholesale on every activation or retirement so
// readers never observe a partially updated key set.
type Set struct {
	entries []Entry
	byID    map[string][]byte
	legacy  []byte
}

func newSet(entries []Entry, legacy []byte) *Set {
	byID := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		byID[entry.KeyID] = entry.Key
	}
	return &Set{entries: entries, byID: byID, legacy: legacy}
}

// Get returns the derived key material for a key id.
func (s *Set) Get(keyID string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	key, ok := s.byID[keyID]
	return key, ok
}

// All returns every candidate key for trial decryption, the legacy
// single-key derivation last. The returned slice must not be mutated.
func (s *Set) All() []Entry {
	if s == nil {
		return nil
	}
	if s.legacy == nil {
		return s.entries
	}
	all := make([]Entry, 0, len(s.entries)+1)
	all = append(all, s.entries...)
	all = append(all, Entry{KeyID: "", Key: s.legacy})
	return all
}

// Len returns the number of loaded keys, excluding the legacy derivation.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}
