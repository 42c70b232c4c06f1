package cryptofs

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

const sivTagSize = 16

// sivCryptor is a deterministic AEAD over AES (RFC 5297): the tag is a
// synthetic IV computed from the plaintext and the parent directory-id,
// so equal names under the same parent always seal to equal bytes. The
// 64-byte key splits in half: the first 32 bytes key the S2V PRF, the
// last 32 the CTR layer. Unlike a general SIV, exactly one associated
// datum is supported, because a name is only ever bound to one parent.
type sivCryptor struct {
	prf  cipher.Block // S2V / CMAC
	enc  cipher.Block // CTR keystream
	sub1 [16]byte     // CMAC subkey for a complete final block
	sub2 [16]byte     // CMAC subkey for a padded final block
}

func newSIVCryptor(key []byte) (*sivCryptor, error) {
	if len(key) != 64 {
		return nil, newVaultError(KindVaultKeyInvalid, "siv", "",
			fmt.Errorf("need a 64-byte key, got %d", len(key)))
	}
	prf, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, newVaultError(KindVaultKeyInvalid, "siv", "", err)
	}
	enc, err := aes.NewCipher(key[32:])
	if err != nil {
		return nil, newVaultError(KindVaultKeyInvalid, "siv", "", err)
	}

	s := &sivCryptor{prf: prf, enc: enc}
	var l [16]byte
	prf.Encrypt(l[:], l[:])
	s.sub1 = gfDouble(l)
	s.sub2 = gfDouble(s.sub1)
	return s, nil
}

// Seal returns tag || CTR(plaintext) where tag = S2V(dirID, plaintext).
func (s *sivCryptor) Seal(plaintext, dirID []byte) []byte {
	tag := s.synthesize(plaintext, dirID)
	out := make([]byte, sivTagSize+len(plaintext))
	copy(out, tag[:])
	s.keystream(tag, out[sivTagSize:], plaintext)
	return out
}

// Open reverses Seal. A tag mismatch means the blob was tampered with,
// or dirID is not the parent the name was sealed under.
func (s *sivCryptor) Open(blob, dirID []byte) ([]byte, error) {
	if len(blob) < sivTagSize {
		return nil, newVaultError(KindCorrupted, "siv", "",
			fmt.Errorf("sealed name shorter than its %d-byte tag", sivTagSize))
	}
	var tag [16]byte
	copy(tag[:], blob[:sivTagSize])
	plaintext := make([]byte, len(blob)-sivTagSize)
	s.keystream(tag, plaintext, blob[sivTagSize:])

	want := s.synthesize(plaintext, dirID)
	if subtle.ConstantTimeCompare(tag[:], want[:]) != 1 {
		return nil, newVaultError(KindAuthenticationFailed, "siv", "",
			fmt.Errorf("synthetic IV mismatch"))
	}
	return plaintext, nil
}

// keystream runs AES-CTR over src into dst. The tag's two counter bits
// are cleared first, as RFC 5297 §2.5 requires; tag is a copy, so the
// caller's value is untouched.
func (s *sivCryptor) keystream(tag [16]byte, dst, src []byte) {
	tag[8] &= 0x7f
	tag[12] &= 0x7f
	cipher.NewCTR(s.enc, tag[:]).XORKeyStream(dst, src)
}

// synthesize is S2V (RFC 5297 §2.4) specialized to one associated
// datum: chain the doubled CMAC of the zero block through the
// directory-id, then fold the plaintext in, XOR-ending when a full
// block is available and pad-doubling otherwise.
func (s *sivCryptor) synthesize(plaintext, dirID []byte) [16]byte {
	var zero [16]byte
	acc := gfDouble(s.cmac(zero[:]))
	adMac := s.cmac(dirID)
	subtle.XORBytes(acc[:], acc[:], adMac[:])

	if len(plaintext) >= 16 {
		final := make([]byte, len(plaintext))
		copy(final, plaintext)
		tail := final[len(final)-16:]
		subtle.XORBytes(tail, tail, acc[:])
		return s.cmac(final)
	}

	acc = gfDouble(acc)
	acc[len(plaintext)] ^= 0x80
	subtle.XORBytes(acc[:len(plaintext)], acc[:len(plaintext)], plaintext)
	return s.cmac(acc[:])
}

// cmac computes AES-CMAC of msg under the PRF block, masking the final
// block with sub1 when it is complete and with sub2 after 10* padding
// otherwise.
func (s *sivCryptor) cmac(msg []byte) [16]byte {
	whole := len(msg) / 16
	rem := len(msg) % 16
	completeFinal := len(msg) > 0 && rem == 0
	if completeFinal {
		whole--
	}

	var state [16]byte
	for i := 0; i < whole; i++ {
		subtle.XORBytes(state[:], state[:], msg[i*16:(i+1)*16])
		s.prf.Encrypt(state[:], state[:])
	}

	var last [16]byte
	if completeFinal {
		copy(last[:], msg[len(msg)-16:])
		subtle.XORBytes(last[:], last[:], s.sub1[:])
	} else {
		copy(last[:], msg[whole*16:])
		last[rem] = 0x80
		subtle.XORBytes(last[:], last[:], s.sub2[:])
	}
	subtle.XORBytes(state[:], state[:], last[:])
	s.prf.Encrypt(state[:], state[:])
	return state
}

// gfDouble multiplies a 128-bit block by x in GF(2^128), branchlessly:
// the bit shifted out of the top conditions an XOR of the reduction
// constant 0x87 into the low byte.
func gfDouble(b [16]byte) [16]byte {
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])
	carry := hi >> 63
	hi = hi<<1 | lo>>63
	lo <<= 1

	var out [16]byte
	binary.BigEndian.PutUint64(out[:8], hi)
	binary.BigEndian.PutUint64(out[8:], lo)
	out[15] ^= byte(carry * 0x87)
	return out
}
