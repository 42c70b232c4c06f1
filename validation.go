package cryptofs

import "fmt"

// Argument guards for the entry points that accept raw caller input.
// Structural checks (header length, sealed-name length) live with the
// types that own the format.

// checkReadWriteArgs guards OpenFile.Read/Write before the file lock is
// taken.
func checkReadWriteArgs(buf []byte, position int64) error {
	if buf == nil {
		return ErrNilBuffer
	}
	if position < 0 {
		return ErrNegativeOffset
	}
	return nil
}

// checkKeySize rejects key material of the wrong length for an engine.
func checkKeySize(key []byte, want int) error {
	if len(key) != want {
		return newVaultError(KindVaultKeyInvalid, "checkKey", "",
			fmt.Errorf("need a %d-byte key, got %d", want, len(key)))
	}
	return nil
}

// checkChunkIndex bounds an index against the geometry so a chunk's
// ciphertext offset can never overflow int64.
func (g ChunkGeometry) checkChunkIndex(index int) error {
	if index < 0 || uint64(index) > g.maxChunkIndex() {
		return newVaultError(KindIO, "checkChunkIndex", "",
			fmt.Errorf("chunk index %d outside the addressable ciphertext range", index))
	}
	return nil
}
