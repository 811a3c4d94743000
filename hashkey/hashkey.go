// Package hashkey provides the keyed 32-byte hash the table engine uses for
// owner hashes and dictionary hashes (spec.md §6 "Consumed from the
// hasher"). It wraps golang.org/x/crypto/blake2b, which is the one
// BLAKE2b-family implementation already reachable from the teacher's
// dependency graph (golang.org/x/crypto is a direct erigon dependency).
package hashkey

import (
	"encoding/base64"

	"golang.org/x/crypto/blake2b"
)

// Size is the width of every hash this package produces.
const Size = 32

// Zero is the all-zero hash. A zero dictionary hash means "section is
// uncompressed" (spec.md §3); it is never a value Generic can return,
// since blake2b never outputs all-zero for a non-empty key.
var Zero [Size]byte

// Generic computes a keyed BLAKE2b-256 hash of data, keyed by key. The
// table engine uses the table name as the key so that two tables storing
// byte-identical dictionaries never collide on the Dictionaries tree
// (spec.md GLOSSARY "Dictionary hash").
func Generic(data []byte, key []byte) [Size]byte {
	h, err := blake2b.New256(key)
	if err != nil {
		// Only returns an error when the key exceeds 64 bytes; table names
		// are bounded well below that in practice, so this is a programmer
		// error, not a runtime condition.
		panic("hashkey: " + err.Error())
	}
	h.Write(data)
	var out [Size]byte
	h.Sum(out[:0])
	return out
}

// Base64 renders a hash the way spec.md §4.2 requires it be reported in the
// "dictionary not found" error: base64 of the 32 raw bytes.
func Base64(hash [Size]byte) string {
	return base64.StdEncoding.EncodeToString(hash[:])
}

// IsZero reports whether hash is the all-zero "no dictionary" sentinel.
func IsZero(hash [Size]byte) bool {
	return hash == Zero
}
