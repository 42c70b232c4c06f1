package cryptofs

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// FileHeader is the opaque per-file cryptographic header: a nonce plus
// the authenticated cleartext size, sealed as a single AEAD unit by a
// HeaderCryptor. Exactly one per OpenFile; its sealed form occupies the
// first H bytes of the ciphertext file. Nonce is the seed every chunk's
// nonce is derived from (see cipher.go's nonceForChunk), so it is
// generated once and then held fixed for the file's lifetime.
type FileHeader struct {
	Nonce         []byte
	ClearTextSize int64
}

const headerPayloadSize = 8 // just the size field; nonce is carried in Nonce, not the payload

// Seal produces the H-byte on-disk header. The first call generates a
// random per-file nonce and stores it on h; later calls (e.g. from
// OpenFile.force on every flush) reuse that same nonce rather than
// drawing a new one, since chunks already written to disk were sealed
// against it; regenerating it would make them unauthenticatable.
func (h *FileHeader) Seal(hc HeaderCryptor) ([]byte, error) {
	if len(h.Nonce) == 0 {
		nonce := make([]byte, hc.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("generate header nonce: %w", err)
		}
		h.Nonce = nonce
	}
	payload := make([]byte, headerPayloadSize)
	binary.BigEndian.PutUint64(payload, uint64(h.ClearTextSize))
	sealed, err := hc.SealHeader(h.Nonce, payload)
	if err != nil {
		return nil, fmt.Errorf("seal header: %w", err)
	}
	return sealed, nil
}

// OpenFileHeader reads and authenticates the H-byte on-disk header,
// recovering the per-file nonce so subsequent chunk I/O derives correct
// per-chunk nonces.
func OpenFileHeader(hc HeaderCryptor, sealed []byte) (*FileHeader, error) {
	if len(sealed) < HeaderSize(hc) {
		return nil, newVaultError(KindCorrupted, "openHeader", "",
			fmt.Errorf("sealed header truncated: %d bytes, need %d", len(sealed), HeaderSize(hc)))
	}
	payload, nonce, err := hc.OpenHeader(sealed)
	if err != nil {
		return nil, err
	}
	if len(payload) < headerPayloadSize {
		return nil, newVaultError(KindCorrupted, "openHeader", "", fmt.Errorf("header payload too short"))
	}
	size := int64(binary.BigEndian.Uint64(payload[:headerPayloadSize]))
	return &FileHeader{Nonce: nonce, ClearTextSize: size}, nil
}

// HeaderSize returns H for the given header cryptor: the on-disk size
// of a sealed header (nonce + AEAD overhead + payload).
func HeaderSize(hc HeaderCryptor) int {
	return hc.NonceSize() + hc.Overhead() + headerPayloadSize
}
