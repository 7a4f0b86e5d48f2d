// Package model provides a deliberately simple, in-memory state model of
// the engine's publicly observable behavior, for comparison against the
// real engine under randomized operation sequences. It favors clarity over
// performance and does not attempt to mirror the on-disk format.
package model

// State is the observable state of one engine instance: the current value
// for every key ever put, and a tombstone set for deleted keys.
type State struct {
	values map[string][]byte
	live   map[string]bool
}

// New returns an empty model.
func New() *State {
	return &State{
		values: make(map[string][]byte),
		live:   make(map[string]bool),
	}
}

// Clone deep-copies the model so two independent sequences can fork from
// the same starting point.
func (s *State) Clone() *State {
	c := New()
	for k, v := range s.values {
		cp := make([]byte, len(v))
		copy(cp, v)
		c.values[k] = cp
	}
	for k, v := range s.live {
		c.live[k] = v
	}
	return c
}

// Put records key -> value as the current binding.
func (s *State) Put(key, value []byte) {
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[k] = cp
	s.live[k] = true
}

// Del tombstones key. Idempotent: deleting an absent or already-deleted key
// changes nothing.
func (s *State) Del(key []byte) {
	s.live[string(key)] = false
}

// Get returns the value currently visible for key, and whether it is live.
func (s *State) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if !s.live[k] {
		return nil, false
	}
	v, ok := s.values[k]
	return v, ok
}

// LiveKeys returns every key with a live binding.
func (s *State) LiveKeys() []string {
	var keys []string
	for k, live := range s.live {
		if live {
			keys = append(keys, k)
		}
	}
	return keys
}
