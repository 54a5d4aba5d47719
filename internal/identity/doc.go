// Package identity defines the node's pairing record and where it is kept.
//
// A node holds at most one Identity. Saving a new one replaces the old one
// wholesale; fields are never merged. Two backends implement Store:
//
//   - FileStore writes the record as indented JSON (default
//     ./data/system_data.json), the same shape the install message carries.
//   - SQLiteStore keeps it in the single-row device_identity table.
//
// A missing record loads as ErrNotFound and an unreadable one as ErrCorrupt.
// Callers treat both as "not paired".
package identity
