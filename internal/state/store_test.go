package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarungka/loom/internal/spill"
	"github.com/tarungka/loom/internal/spill/fsdir"
	"github.com/tarungka/loom/window"
)

func testWindow(startMs, endMs int64) window.Window {
	return window.Window{Start: time.UnixMilli(startMs).UTC(), End: time.UnixMilli(endMs).UTC()}
}

func sumCombine(into, from any) any {
	if into == nil {
		return from
	}
	return into.(int64) + from.(int64)
}

func setupStore(t *testing.T, capacity int) (*Store, *fsdir.Store) {
	t.Helper()

	sp, err := fsdir.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sp.Close() })

	st := NewStore(Options{
		Capacity:       capacity,
		Spill:          sp,
		NewAccumulator: func() any { return int64(0) },
		Combine:        sumCombine,
	})
	return st, sp
}

func TestStore_GetCreatesDefault(t *testing.T) {
	st, _ := setupStore(t, 0)

	acc, err := st.Get("a", testWindow(0, 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc)
	assert.Equal(t, 1, st.Len())
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	st, _ := setupStore(t, 0)
	w := testWindow(0, 1000)

	require.NoError(t, st.Put("a", w, int64(42)))
	acc, err := st.Get("a", w)
	require.NoError(t, err)
	assert.Equal(t, int64(42), acc)
}

// Inserting capacity+1 distinct entries must spill exactly one, and the
// spilled entry must come back unchanged on the next access.
func TestStore_SpillBoundAndExchange(t *testing.T) {
	const capacity = 4
	st, _ := setupStore(t, capacity)
	w := testWindow(0, 1000)

	for i := 0; i < capacity+1; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, st.Put(key, w, int64(i*10)))
	}

	assert.Equal(t, capacity+1, st.Len())
	assert.Equal(t, capacity, st.Resident())
	assert.Equal(t, 1, st.Spilled())

	// key-0 is the least recently touched, so it is the one that spilled
	acc, err := st.Get("key-0", w)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc)

	// the exchange is one-in one-out: residency stays at the bound
	assert.Equal(t, capacity, st.Resident())
	assert.Equal(t, 1, st.Spilled())
}

func TestStore_SpilledEntryNeverDuplicated(t *testing.T) {
	st, sp := setupStore(t, 1)
	w := testWindow(0, 1000)

	require.NoError(t, st.Put("a", w, int64(1)))
	require.NoError(t, st.Put("b", w, int64(2)))

	// "a" was exchanged out; exactly one copy of it exists, in the spill
	// store
	assert.Equal(t, 1, st.Spilled())

	// touching "a" brings it back and pushes "b" out; "a"'s record is
	// deleted from the spill store as part of the exchange
	acc, err := st.Get("a", w)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc)
	assert.Equal(t, 1, st.Spilled())

	// only "b"'s record remains spilled
	aAddr := addrFor(t, st, "a", w)
	_, err = sp.Get(aAddr)
	assert.ErrorIs(t, err, spill.ErrNotFound)
}

func addrFor(t *testing.T, st *Store, key any, w window.Window) []byte {
	t.Helper()
	keyBytes, err := st.ser.Marshal(key)
	require.NoError(t, err)
	return spill.EncodeKey(keyBytes, w)
}

func TestStore_Remove(t *testing.T) {
	st, _ := setupStore(t, 1)
	w := testWindow(0, 1000)

	require.NoError(t, st.Put("a", w, int64(1)))
	require.NoError(t, st.Put("b", w, int64(2))) // spills "a"

	require.NoError(t, st.Remove("a", w)) // spilled removal
	require.NoError(t, st.Remove("b", w)) // resident removal
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 0, st.Resident())
}

func TestStore_ForEachInWindow(t *testing.T) {
	st, _ := setupStore(t, 2)
	w1 := testWindow(0, 1000)
	w2 := testWindow(1000, 2000)

	require.NoError(t, st.Put("a", w1, int64(1)))
	require.NoError(t, st.Put("b", w1, int64(2)))
	require.NoError(t, st.Put("c", w2, int64(3))) // spills one of w1's entries

	seen := map[any]any{}
	require.NoError(t, st.ForEachInWindow(w1, func(key, acc any) error {
		seen[key] = acc
		return nil
	}))
	assert.Equal(t, map[any]any{"a": int64(1), "b": int64(2)}, seen)
}

func TestStore_Relocate(t *testing.T) {
	st, _ := setupStore(t, 0)
	src := testWindow(0, 100)
	dst := testWindow(0, 150)

	require.NoError(t, st.Put("a", src, int64(3)))
	require.NoError(t, st.Put("a", dst, int64(4)))
	require.NoError(t, st.Put("b", src, int64(7)))

	require.NoError(t, st.Relocate(src, dst))

	acc, err := st.Get("a", dst)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc)

	acc, err = st.Get("b", dst)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc)

	// source window fully retired; the Get calls above recreate nothing
	// under src
	require.NoError(t, st.ForEachInWindow(src, func(key, acc any) error {
		t.Fatalf("unexpected entry for key %v under retired window", key)
		return nil
	}))
}

func TestStore_RelocateSpilledSource(t *testing.T) {
	st, _ := setupStore(t, 1)
	src := testWindow(0, 100)
	dst := testWindow(0, 150)

	require.NoError(t, st.Put("a", src, int64(5)))
	require.NoError(t, st.Put("a", dst, int64(6))) // spills the src entry

	require.NoError(t, st.Relocate(src, dst))
	acc, err := st.Get("a", dst)
	require.NoError(t, err)
	assert.Equal(t, int64(11), acc)
	assert.Equal(t, 1, st.Len())
}

func TestStore_CorruptSpillRecord(t *testing.T) {
	st, sp := setupStore(t, 1)
	w := testWindow(0, 1000)

	require.NoError(t, st.Put("a", w, int64(1)))
	require.NoError(t, st.Put("b", w, int64(2))) // spills "a"

	// clobber "a"'s record behind the store's back
	require.NoError(t, sp.Put(addrFor(t, st, "a", w), []byte{0xc1})) // 0xc1 is never valid msgpack

	_, err := st.Get("a", w)
	var cerr *CorruptionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a", cerr.Key)

	// the entry is treated as lost; other keys keep working
	assert.Equal(t, 1, st.Len())
	acc, err := st.Get("b", w)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc)
}

func TestStore_LostSpillRecord(t *testing.T) {
	st, sp := setupStore(t, 1)
	w := testWindow(0, 1000)

	require.NoError(t, st.Put("a", w, int64(1)))
	require.NoError(t, st.Put("b", w, int64(2))) // spills "a"

	// the record vanishes behind the store's back, e.g. an external
	// cleanup of the spill directory
	require.NoError(t, sp.Delete(addrFor(t, st, "a", w)))

	_, err := st.Get("a", w)
	var cerr *CorruptionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a", cerr.Key)

	// the lost entry is dropped, not reported over and over
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 0, st.Spilled())
	acc, err := st.Get("a", w)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc) // fresh accumulator, not the lost one

	acc, err = st.Get("b", w)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc)
}

func TestStore_BoundedWithoutSpillPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewStore(Options{Capacity: 1})
	})
}

func TestStore_SpillFailurePropagates(t *testing.T) {
	st := NewStore(Options{
		Capacity:       1,
		Spill:          failingStore{},
		NewAccumulator: func() any { return int64(0) },
		Combine:        sumCombine,
	})
	w := testWindow(0, 1000)

	require.NoError(t, st.Put("a", w, int64(1)))
	err := st.Put("b", w, int64(2))
	assert.ErrorIs(t, err, ErrSpillIO)
}

type failingStore struct{}

func (failingStore) Put(_, _ []byte) error        { return errors.New("disk full") }
func (failingStore) Get(_ []byte) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingStore) Delete(_ []byte) error        { return errors.New("disk gone") }
func (failingStore) Close() error                 { return nil }
