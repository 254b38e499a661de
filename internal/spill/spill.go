// Package spill defines the byte-store contract backing state overflow.
// The state store treats a spill store as an opaque key to bytes map with
// create, read and delete operations; where the bytes ultimately live is
// the backend's concern.
package spill

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/tarungka/loom/window"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("spill: record not found")

// Store is a key to bytes map holding spilled state records.
//
// Latency of Put and Get is the caller's concern; implementations must not
// retry internally.
type Store interface {
	Put(key, value []byte) error
	// Get returns the record for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Close() error
}

// EncodeKey builds the spill address for a (key, window) entry: the window
// bounds in big-endian nanoseconds followed by the encoded key.
func EncodeKey(key []byte, w window.Window) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, w.Start.UnixNano())
	binary.Write(buf, binary.BigEndian, w.End.UnixNano())
	buf.Write(key)
	return buf.Bytes()
}

// DecodeKey splits a spill address back into its window bounds and key.
func DecodeKey(addr []byte) ([]byte, window.Window, error) {
	if len(addr) < 16 {
		return nil, window.Window{}, fmt.Errorf("spill: address too short: %d bytes", len(addr))
	}
	var startNano, endNano int64
	buf := bytes.NewReader(addr[:16])
	binary.Read(buf, binary.BigEndian, &startNano)
	binary.Read(buf, binary.BigEndian, &endNano)
	w := window.Window{Start: nanoTime(startNano), End: nanoTime(endNano)}
	return addr[16:], w, nil
}

func nanoTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
