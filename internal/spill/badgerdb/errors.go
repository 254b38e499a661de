package badgerdb

import "errors"

var (
	// ErrDBNotOpen is returned when the store is used before Open.
	ErrDBNotOpen = errors.New("spill db not open")

	// ErrDBOpen is returned when the store is already open.
	ErrDBOpen = errors.New("spill db already open")
)
