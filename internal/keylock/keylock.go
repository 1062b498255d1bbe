// Package keylock serializes work per key with a fixed set of striped
// mutexes. Keys that hash to different stripes never contend.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is used when New is called with n <= 0.
const DefaultStripes = 64

// Striped is a fixed array of mutexes addressed by key hash.
type Striped struct {
	locks []sync.Mutex
}

// New returns a Striped with n stripes.
func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{locks: make([]sync.Mutex, n)}
}

// Lock locks the stripe for key and returns its unlock function.
func (s *Striped) Lock(key string) (unlock func()) {
	m := &s.locks[s.index(key)]
	m.Lock()
	return m.Unlock
}

// Do runs fn while holding the stripe for key.
func (s *Striped) Do(key string, fn func()) {
	unlock := s.Lock(key)
	defer unlock()
	fn()
}

func (s *Striped) index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.locks)))
}
