package cryptofs

import "testing"

func TestFileHeaderSealOpenRoundTrip(t *testing.T) {
	hc, err := NewHeaderCryptor(CipherAESGCM, testChunkKey())
	if err != nil {
		t.Fatalf("NewHeaderCryptor: %v", err)
	}
	h := &FileHeader{ClearTextSize: 123456}
	sealed, err := h.Seal(hc)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) != HeaderSize(hc) {
		t.Errorf("sealed header length = %d, want %d", len(sealed), HeaderSize(hc))
	}

	got, err := OpenFileHeader(hc, sealed)
	if err != nil {
		t.Fatalf("OpenFileHeader: %v", err)
	}
	if got.ClearTextSize != 123456 {
		t.Errorf("ClearTextSize = %d, want 123456", got.ClearTextSize)
	}
	if len(got.Nonce) != hc.NonceSize() {
		t.Errorf("Nonce length = %d, want %d", len(got.Nonce), hc.NonceSize())
	}
	if len(h.Nonce) == 0 {
		t.Error("Seal should populate h.Nonce")
	}
}

func TestFileHeaderSealReusesNonceAcrossReseal(t *testing.T) {
	hc, err := NewHeaderCryptor(CipherAESGCM, testChunkKey())
	if err != nil {
		t.Fatalf("NewHeaderCryptor: %v", err)
	}
	h := &FileHeader{ClearTextSize: 1}
	if _, err := h.Seal(hc); err != nil {
		t.Fatalf("first Seal: %v", err)
	}
	first := append([]byte(nil), h.Nonce...)

	h.ClearTextSize = 2
	if _, err := h.Seal(hc); err != nil {
		t.Fatalf("second Seal: %v", err)
	}
	if string(h.Nonce) != string(first) {
		t.Error("Seal must not regenerate the nonce on a reseal of the same header")
	}
}

func TestOpenFileHeaderRejectsTampering(t *testing.T) {
	hc, err := NewHeaderCryptor(CipherAESGCM, testChunkKey())
	if err != nil {
		t.Fatalf("NewHeaderCryptor: %v", err)
	}
	sealed, err := (&FileHeader{ClearTextSize: 10}).Seal(hc)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := OpenFileHeader(hc, sealed); !IsKind(err, KindAuthenticationFailed) {
		t.Errorf("OpenFileHeader on tampered header error = %v, want KindAuthenticationFailed", err)
	}
}
