// internal/pseudonym/pseudonym.go
// Derives the per-connection integer that stands in for a username.
package pseudonym

import (
	"crypto/sha512"
	"encoding/binary"
)

// Of returns the pseudonym of username for a connection salted with salt.
// The same pair always yields the same value; a different salt yields an
// unrelated one, so two connections cannot correlate a user.
func Of(username string, salt uint64) int32 {
	h := sha512.New()
	h.Write([]byte(username))

	var saltBytes [8]byte
	binary.BigEndian.PutUint64(saltBytes[:], salt)
	h.Write(saltBytes[:])

	sum := h.Sum(nil)
	return int32(binary.LittleEndian.Uint32(sum[:4]))
}
