package state

import (
	"container/list"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarungka/loom/internal/codec"
	"github.com/tarungka/loom/internal/logger"
	"github.com/tarungka/loom/internal/spill"
	"github.com/tarungka/loom/window"
)

// entryKey addresses one accumulator. Window bounds are flattened to
// nanoseconds so the struct is a well-behaved map key. The state key itself
// must be a comparable Go value.
type entryKey struct {
	key        any
	start, end int64
}

func newEntryKey(key any, w window.Window) entryKey {
	return entryKey{key: key, start: w.Start.UnixNano(), end: w.End.UnixNano()}
}

// winKey is a window flattened to nanosecond bounds, usable as a map key
// regardless of the time.Time representation it came from.
type winKey struct {
	start, end int64
}

func newWinKey(w window.Window) winKey {
	return winKey{start: w.Start.UnixNano(), end: w.End.UnixNano()}
}

// entry is a tagged union: a resident entry owns a live accumulator, a
// spilled entry owns only the address of its serialized form. Never both.
type entry struct {
	key any
	win window.Window

	resident bool
	acc      any    // valid iff resident
	addr     []byte // valid iff !resident

	lastTouched time.Time
	elem        *list.Element // position in the LRU list, resident only
}

type Options struct {
	// Capacity is the maximum number of resident entries. Zero or negative
	// means unbounded; nothing spills.
	Capacity int
	// Spill receives evicted entries. Required when Capacity > 0.
	Spill spill.Store
	// Serializer encodes keys and accumulators for spilling. Defaults to
	// msgpack.
	Serializer codec.Serializer
	// NewAccumulator creates the default accumulator for a fresh entry.
	NewAccumulator func() any
	// Combine folds accumulators during Relocate.
	Combine CombineFunc
}

// Store is a keyed, windowed accumulator store with overflow to a spill
// store.
type Store struct {
	capacity int
	spill    spill.Store
	ser      codec.Serializer
	newAcc   func() any
	combine  CombineFunc

	entries  map[entryKey]*entry
	byWindow map[winKey]map[entryKey]struct{}
	lru      *list.List // resident entries, most recently touched at front
	resident int

	logger zerolog.Logger
}

// NewStore returns an empty store. A bounded store without a spill store
// to exchange entries with is a programming error and panics.
func NewStore(opts Options) *Store {
	if opts.Capacity > 0 && opts.Spill == nil {
		panic("state: bounded store needs a spill store")
	}
	ser := opts.Serializer
	if ser == nil {
		ser = codec.NewMsgpack()
	}
	newAcc := opts.NewAccumulator
	if newAcc == nil {
		newAcc = func() any { return nil }
	}
	return &Store{
		capacity: opts.Capacity,
		spill:    opts.Spill,
		ser:      ser,
		newAcc:   newAcc,
		combine:  opts.Combine,
		entries:  make(map[entryKey]*entry),
		byWindow: make(map[winKey]map[entryKey]struct{}),
		lru:      list.New(),
		logger:   logger.GetLogger("state"),
	}
}

// Len returns the total number of entries, resident and spilled.
func (s *Store) Len() int {
	return len(s.entries)
}

// Resident returns the number of entries currently held in memory.
func (s *Store) Resident() int {
	return s.resident
}

// Spilled returns the number of entries currently held by the spill store.
func (s *Store) Spilled() int {
	return len(s.entries) - s.resident
}

// Get returns the accumulator for (key, w), creating the default one if the
// entry does not exist yet. A spilled entry is exchanged back into memory
// first.
func (s *Store) Get(key any, w window.Window) (any, error) {
	e, err := s.fetch(key, w, true)
	if err != nil {
		return nil, err
	}
	return e.acc, nil
}

// Put stores the accumulator for (key, w), creating the entry if needed.
func (s *Store) Put(key any, w window.Window, acc any) error {
	e, err := s.fetch(key, w, true)
	if err != nil {
		return err
	}
	e.acc = acc
	return nil
}

// Remove drops the entry for (key, w), wherever it lives.
func (s *Store) Remove(key any, w window.Window) error {
	ek := newEntryKey(key, w)
	e, ok := s.entries[ek]
	if !ok {
		return nil
	}
	return s.drop(ek, e)
}

// ForEachInWindow calls fn for every (key, accumulator) stored under w.
// Spilled entries are loaded back in on the way through. Iteration stops at
// the first error.
func (s *Store) ForEachInWindow(w window.Window, fn func(key, acc any) error) error {
	for ek := range s.byWindow[newWinKey(w)] {
		e := s.entries[ek]
		if err := s.ensureResident(e); err != nil {
			return err
		}
		s.touch(e)
		if err := fn(e.key, e.acc); err != nil {
			return err
		}
	}
	return nil
}

// DropWindow removes every entry stored under w.
func (s *Store) DropWindow(w window.Window) error {
	for ek := range s.byWindow[newWinKey(w)] {
		if err := s.drop(ek, s.entries[ek]); err != nil {
			return err
		}
	}
	return nil
}

// Relocate folds every entry under src into the same key's entry under dst
// using the configured combine function, then removes the src entries. It
// is the state half of a window merge; each source accumulator is moved
// exactly once.
func (s *Store) Relocate(src, dst window.Window) error {
	if s.combine == nil {
		return fmt.Errorf("state: relocate requires a combine function")
	}
	if newWinKey(src) == newWinKey(dst) {
		return nil
	}
	for ek := range s.byWindow[newWinKey(src)] {
		e := s.entries[ek]
		if err := s.ensureResident(e); err != nil {
			return err
		}
		moved := e.acc
		key := e.key
		if err := s.drop(ek, e); err != nil {
			return err
		}
		target, err := s.fetch(key, dst, true)
		if err != nil {
			return err
		}
		target.acc = s.combine(target.acc, moved)
	}
	return nil
}

// RelocateKey folds a single key's entry under src into the same key's
// entry under dst, then removes the src entry. Missing src entries are a
// no-op: a freshly assigned window may carry no state yet.
func (s *Store) RelocateKey(key any, src, dst window.Window) error {
	if s.combine == nil {
		return fmt.Errorf("state: relocate requires a combine function")
	}
	if newWinKey(src) == newWinKey(dst) {
		return nil
	}
	ek := newEntryKey(key, src)
	e, ok := s.entries[ek]
	if !ok {
		return nil
	}
	if err := s.ensureResident(e); err != nil {
		return err
	}
	moved := e.acc
	if err := s.drop(ek, e); err != nil {
		return err
	}
	target, err := s.fetch(key, dst, true)
	if err != nil {
		return err
	}
	target.acc = s.combine(target.acc, moved)
	return nil
}

// fetch returns the entry for (key, w), resident. When create is set a
// missing entry is created with the default accumulator.
func (s *Store) fetch(key any, w window.Window, create bool) (*entry, error) {
	ek := newEntryKey(key, w)
	e, ok := s.entries[ek]
	if !ok {
		if !create {
			return nil, nil
		}
		e = &entry{key: key, win: w, resident: true, acc: s.newAcc()}
		s.entries[ek] = e
		wk := newWinKey(w)
		idx, ok := s.byWindow[wk]
		if !ok {
			idx = make(map[entryKey]struct{})
			s.byWindow[wk] = idx
		}
		idx[ek] = struct{}{}
		e.elem = s.lru.PushFront(e)
		e.lastTouched = time.Now()
		s.resident++
		return e, s.enforceBound()
	}
	if err := s.ensureResident(e); err != nil {
		return nil, err
	}
	s.touch(e)
	return e, nil
}

func (s *Store) touch(e *entry) {
	e.lastTouched = time.Now()
	s.lru.MoveToFront(e.elem)
}

// ensureResident exchanges a spilled entry back into memory, evicting
// another entry if that brings residency over the bound.
func (s *Store) ensureResident(e *entry) error {
	if e.resident {
		return nil
	}

	data, err := s.spill.Get(e.addr)
	if err != nil {
		if err == spill.ErrNotFound {
			// the record is gone, e.g. cleaned up externally; the entry
			// is lost and must not be found again
			cerr := &CorruptionError{Key: e.key, Window: e.win, Err: err}
			s.logger.Err(cerr).Msg("dropping entry with lost spill record")
			s.forget(e)
			return cerr
		}
		return fmt.Errorf("%w: reloading key %v window %v: %v", ErrSpillIO, e.key, e.win, err)
	}
	var acc any
	if err := s.ser.Unmarshal(data, &acc); err != nil {
		// the record is unusable; treat it as lost and drop it so it is
		// not found again
		cerr := &CorruptionError{Key: e.key, Window: e.win, Err: err}
		s.logger.Err(cerr).Msg("dropping undecodable spill record")
		if derr := s.spill.Delete(e.addr); derr != nil {
			s.logger.Err(derr).Msg("leaking undecodable spill record")
		}
		s.forget(e)
		return cerr
	}
	if err := s.spill.Delete(e.addr); err != nil {
		return fmt.Errorf("%w: releasing record for key %v window %v: %v", ErrSpillIO, e.key, e.win, err)
	}

	e.resident = true
	e.acc = acc
	e.addr = nil
	e.elem = s.lru.PushFront(e)
	e.lastTouched = time.Now()
	s.resident++
	return s.enforceBound()
}

// enforceBound spills least-recently-touched entries until residency is
// back within capacity. Classic one-in, one-out exchange.
func (s *Store) enforceBound() error {
	if s.capacity <= 0 || s.spill == nil {
		return nil
	}
	for s.resident > s.capacity {
		victim := s.lru.Back().Value.(*entry)
		if err := s.evict(victim); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) evict(e *entry) error {
	keyBytes, err := s.ser.Marshal(e.key)
	if err != nil {
		return fmt.Errorf("%w: encoding key %v: %v", ErrSpillIO, e.key, err)
	}
	accBytes, err := s.ser.Marshal(e.acc)
	if err != nil {
		return fmt.Errorf("%w: encoding accumulator for key %v: %v", ErrSpillIO, e.key, err)
	}
	addr := spill.EncodeKey(keyBytes, e.win)
	if err := s.spill.Put(addr, accBytes); err != nil {
		return fmt.Errorf("%w: spilling key %v window %v: %v", ErrSpillIO, e.key, e.win, err)
	}

	s.logger.Trace().Msgf("spilled entry for key %v window %v", e.key, e.win)
	s.lru.Remove(e.elem)
	e.elem = nil
	e.resident = false
	e.acc = nil
	e.addr = addr
	s.resident--
	return nil
}

// drop removes an entry from every index and, when spilled, from the spill
// store.
func (s *Store) drop(ek entryKey, e *entry) error {
	if !e.resident {
		if err := s.spill.Delete(e.addr); err != nil {
			return fmt.Errorf("%w: deleting record for key %v window %v: %v", ErrSpillIO, e.key, e.win, err)
		}
	}
	s.forget(e)
	return nil
}

// forget removes an entry from the in-memory indexes only.
func (s *Store) forget(e *entry) {
	ek := newEntryKey(e.key, e.win)
	delete(s.entries, ek)
	wk := newWinKey(e.win)
	if idx, ok := s.byWindow[wk]; ok {
		delete(idx, ek)
		if len(idx) == 0 {
			delete(s.byWindow, wk)
		}
	}
	if e.resident {
		s.lru.Remove(e.elem)
		e.elem = nil
		s.resident--
	}
	e.resident = false
	e.acc = nil
	e.addr = nil
}
