package cryptofs

import (
	"testing"

	"github.com/absfs/memfs"
)

func TestAttributeViewReadDirectory(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	if err := host.MkdirAll("/vault/d/AA/somedir", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	geometry := ChunkGeometry{HeaderSize: 40, ClearChunk: 32 * 1024, CipherChunk: 32*1024 + 28}
	view := NewAttributeView(nil, nil, geometry, host)

	attrs, err := view.Read("/somedir", "/vault/d/AA/somedir")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !attrs.IsDir {
		t.Error("expected IsDir to be true")
	}
}

func TestAttributeViewComputesCleartextSize(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	geometry := ChunkGeometry{HeaderSize: 40, ClearChunk: 100, CipherChunk: 128}
	view := NewAttributeView(nil, nil, geometry, host)

	// one full chunk (28 bytes overhead) plus the header.
	ciphertextSize := int64(geometry.HeaderSize + geometry.CipherChunk)
	if err := writeWholeFile(host, "/file.c9r", make([]byte, ciphertextSize)); err != nil {
		t.Fatalf("writeWholeFile: %v", err)
	}

	attrs, err := view.Read("/file.txt", "/file.c9r")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if attrs.Size != int64(geometry.ClearChunk) {
		t.Errorf("Size = %d, want %d", attrs.Size, geometry.ClearChunk)
	}
}

func TestAttributeViewMissingFile(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	geometry := ChunkGeometry{HeaderSize: 40, ClearChunk: 100, CipherChunk: 128}
	view := NewAttributeView(nil, nil, geometry, host)
	if _, err := view.Read("/ghost.txt", "/ghost.c9r"); !IsKind(err, KindNotFound) {
		t.Errorf("Read(missing) error = %v, want KindNotFound", err)
	}
}

func TestAttributeViewPrefersLiveOpenFile(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	hc, err := NewHeaderCryptor(CipherAESGCM, testChunkKey())
	if err != nil {
		t.Fatalf("NewHeaderCryptor: %v", err)
	}
	cryptor, geometry := testGeometry(t, hc)
	registry := NewOpenFileRegistry(host, cryptor, hc, geometry, 5, false, PrefetchConfig{})

	of, err := registry.Get("/file.c9r", OpenFileOptions{Create: true, TruncateExisting: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := of.Write([]byte("hello"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Deliberately do not Force/Close: the on-disk ciphertext still
	// reflects size 0, so a correct AttributeView must consult the
	// live OpenFile rather than recomputing from the host stat.
	view := NewAttributeView(registry, nil, geometry, host)
	attrs, err := view.Read("/file.txt", "/file.c9r")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if attrs.Size != 5 {
		t.Errorf("Size = %d, want 5 (live OpenFile size, not on-disk)", attrs.Size)
	}
	if attrs.ModTime.IsZero() {
		t.Error("ModTime should be populated from the live OpenFile")
	}
}

func TestCleartextSizeFromCiphertextClampsNegative(t *testing.T) {
	geometry := ChunkGeometry{HeaderSize: 40, ClearChunk: 100, CipherChunk: 128}
	view := NewAttributeView(nil, nil, geometry, nil)
	// smaller than the header alone: truncated/corrupt.
	if got := view.cleartextSizeFromCiphertext(10); got != 0 {
		t.Errorf("cleartextSizeFromCiphertext(10) = %d, want 0", got)
	}
}
