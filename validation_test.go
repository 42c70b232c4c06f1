package cryptofs

import "testing"

func TestCheckReadWriteArgs(t *testing.T) {
	if err := checkReadWriteArgs(nil, 0); err != ErrNilBuffer {
		t.Errorf("checkReadWriteArgs(nil buf) error = %v, want ErrNilBuffer", err)
	}
	if err := checkReadWriteArgs([]byte{1}, -1); err != ErrNegativeOffset {
		t.Errorf("checkReadWriteArgs(neg pos) error = %v, want ErrNegativeOffset", err)
	}
	if err := checkReadWriteArgs([]byte{1}, 0); err != nil {
		t.Errorf("checkReadWriteArgs(ok) error = %v, want nil", err)
	}
}

func TestCheckKeySize(t *testing.T) {
	if err := checkKeySize(nil, 32); !IsKind(err, KindVaultKeyInvalid) {
		t.Errorf("checkKeySize(nil) error = %v, want KindVaultKeyInvalid", err)
	}
	if err := checkKeySize(make([]byte, 16), 32); !IsKind(err, KindVaultKeyInvalid) {
		t.Errorf("checkKeySize(short) error = %v, want KindVaultKeyInvalid", err)
	}
	if err := checkKeySize(make([]byte, 32), 32); err != nil {
		t.Errorf("checkKeySize(ok) error = %v, want nil", err)
	}
}

func TestCheckChunkIndex(t *testing.T) {
	g := ChunkGeometry{HeaderSize: 40, ClearChunk: 100, CipherChunk: 128}
	if err := g.checkChunkIndex(-1); err == nil {
		t.Error("expected a negative chunk index to be rejected")
	}
	if err := g.checkChunkIndex(0); err != nil {
		t.Errorf("checkChunkIndex(0) error = %v, want nil", err)
	}
	huge := int(g.maxChunkIndex()) // still addressable
	if err := g.checkChunkIndex(huge); err != nil {
		t.Errorf("checkChunkIndex(max) error = %v, want nil", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := (Options{}).withDefaults().validate(); err != nil {
		t.Errorf("default options should validate, got %v", err)
	}
	bad := Options{}.withDefaults()
	bad.ChunkCacheCapacity = 0
	if err := bad.validate(); err == nil {
		t.Error("expected zero cache capacity to be rejected")
	}
	bad = Options{}.withDefaults()
	bad.Prefetch.Workers = -1
	if err := bad.validate(); err == nil {
		t.Error("expected negative prefetch workers to be rejected")
	}
	bad = Options{}.withDefaults()
	bad.Prefetch.Threshold = 0
	if err := bad.validate(); err == nil {
		t.Error("expected zero prefetch threshold to be rejected")
	}
}
