// Package snapshot persists the in-memory backend to disk.
//
// A snapshot file is laid out as
//
//	magic "MGSNAP01" | u32 header length | header JSON |
//	u32 data length | data | SHA-256 of everything before it
//
// The data block is the JSON-encoded State, sealed with an adaptive
// cipher when a passphrase is configured. The key is derived with
// Argon2id from the passphrase and a per-manager salt kept in the header.
// The header is bound to the ciphertext as additional data.
//
// Files are written to a temporary name and renamed into place. Load
// picks the newest readable snapshot and skips corrupt ones.
package snapshot
