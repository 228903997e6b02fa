// Package retained holds the small counter block that survives deep sleep but
// not a full power loss: the boot counter and the watering fail-safe counter.
package retained

import (
	"errors"
	"fmt"
)

// DefaultFailSafeCeiling is the number of timer wakes allowed without a manual
// wake before the fail-safe counter reaches its floor.
const DefaultFailSafeCeiling = 24

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("retained store closed")

// Counters is the retained memory block.
type Counters struct {
	BootCount int `msgpack:"boot_count"`
	FailSafe  int `msgpack:"fail_safe"`
}

// Store persists Counters across deep-sleep reboots.
type Store interface {
	// Load returns the stored counters, or false when nothing has been stored
	// since the last power loss.
	Load() (Counters, bool, error)
	Save(Counters) error
	// Reset discards the stored block, as a full power loss would.
	Reset() error
	Close() error
}

// Defaults returns the block a cold power-up starts with.
func Defaults(failSafeCeiling int) Counters {
	return Counters{BootCount: 0, FailSafe: failSafeCeiling}
}

// LoadOrDefault loads the retained block, falling back to Defaults when the
// store is empty. The bool reports whether the defaults were used.
func LoadOrDefault(s Store, failSafeCeiling int) (Counters, bool, error) {
	c, ok, err := s.Load()
	if err != nil {
		return Counters{}, false, fmt.Errorf("load retained counters: %w", err)
	}
	if !ok {
		return Defaults(failSafeCeiling), true, nil
	}
	return c, false, nil
}

// MemoryStore keeps the block in process memory. It is the store used by
// tests and by builds without any persistence primitive.
type MemoryStore struct {
	c      Counters
	ok     bool
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (Counters, bool, error) {
	if m.closed {
		return Counters{}, false, ErrClosed
	}
	return m.c, m.ok, nil
}

func (m *MemoryStore) Save(c Counters) error {
	if m.closed {
		return ErrClosed
	}
	m.c = c
	m.ok = true
	return nil
}

func (m *MemoryStore) Reset() error {
	if m.closed {
		return ErrClosed
	}
	m.c = Counters{}
	m.ok = false
	return nil
}

func (m *MemoryStore) Close() error {
	m.closed = true
	return nil
}
