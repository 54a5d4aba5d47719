package identity

import "errors"

var (
	// ErrNotFound is returned by Load when no record has been saved.
	ErrNotFound = errors.New("identity: no record")

	// ErrCorrupt is returned by Load when the stored record cannot be decoded.
	ErrCorrupt = errors.New("identity: corrupt record")

	// ErrNoSysID is returned by Save for a record without an identifier.
	ErrNoSysID = errors.New("identity: sys_id is empty")
)
