package identity

import "context"

// Store persists the single identity record.
type Store interface {
	// Load returns the saved record, ErrNotFound, or an ErrCorrupt wrap.
	Load(ctx context.Context) (Identity, error)

	// Save replaces any existing record.
	Save(ctx context.Context, id Identity) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context) error
}
