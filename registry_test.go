package cryptofs

import (
	"os"
	"testing"

	"github.com/absfs/memfs"
)

func testRegistry(t *testing.T, readOnly bool) *OpenFileRegistry {
	t.Helper()
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	hc, err := NewHeaderCryptor(CipherAESGCM, testChunkKey())
	if err != nil {
		t.Fatalf("NewHeaderCryptor: %v", err)
	}
	cryptor, geometry := testGeometry(t, hc)
	return NewOpenFileRegistry(host, cryptor, hc, geometry, 5, readOnly, PrefetchConfig{})
}

func TestOpenFileRegistryInternsOnePerPath(t *testing.T) {
	r := testRegistry(t, false)
	a, err := r.Get("/a.c9r", OpenFileOptions{Create: true, TruncateExisting: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := r.Get("/a.c9r", OpenFileOptions{})
	if err != nil {
		t.Fatalf("Get(second opener): %v", err)
	}
	if a != b {
		t.Error("expected the same OpenFile for the same host path")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close (first): %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close (second): %v", err)
	}
}

func TestOpenFileRegistryForgetsOnFinalClose(t *testing.T) {
	r := testRegistry(t, false)
	a, err := r.Get("/a.c9r", OpenFileOptions{Create: true, TruncateExisting: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r.mu.Lock()
	_, stillTracked := r.entries["/a.c9r"]
	r.mu.Unlock()
	if stillTracked {
		t.Error("expected the registry to forget the entry after its final close")
	}

	// reopening after the forget should succeed and build a fresh entry.
	b, err := r.Get("/a.c9r", OpenFileOptions{})
	if err != nil {
		t.Fatalf("Get(after close): %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenFileRegistryReadOnlyRejectsWritableOpen(t *testing.T) {
	r := testRegistry(t, true)
	if _, err := r.Get("/a.c9r", OpenFileOptions{}); err != ErrReadOnly {
		t.Errorf("Get on read-only registry error = %v, want ErrReadOnly", err)
	}
	if _, err := r.Get("/a.c9r", OpenFileOptions{ReadOnly: true}); err == nil {
		t.Error("expected an error opening a nonexistent file read-only")
	}
}

func TestOpenFileRegistryCloseAll(t *testing.T) {
	r := testRegistry(t, false)
	for _, p := range []string{"/a.c9r", "/b.c9r", "/c.c9r"} {
		if _, err := r.Get(p, OpenFileOptions{Create: true, TruncateExisting: true}); err != nil {
			t.Fatalf("Get(%s): %v", p, err)
		}
	}
	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	r.mu.Lock()
	remaining := len(r.entries)
	r.mu.Unlock()
	if remaining != 0 {
		t.Errorf("entries remaining after CloseAll = %d, want 0", remaining)
	}
}

func TestOpenFlags(t *testing.T) {
	if got := openFlags(OpenFileOptions{ReadOnly: true}); got != os.O_RDONLY {
		t.Errorf("openFlags(ReadOnly) = %d, want O_RDONLY (%d)", got, os.O_RDONLY)
	}
	rdwr := openFlags(OpenFileOptions{})
	if rdwr == openFlags(OpenFileOptions{ReadOnly: true}) {
		t.Error("expected a writable open to request different flags than a read-only one")
	}
	withCreate := openFlags(OpenFileOptions{Create: true})
	if withCreate == rdwr {
		t.Error("expected Create to add to the base flags")
	}
	withTrunc := openFlags(OpenFileOptions{TruncateExisting: true})
	if withTrunc == rdwr {
		t.Error("expected TruncateExisting to add to the base flags")
	}
	withNew := openFlags(OpenFileOptions{CreateNew: true})
	if withNew&os.O_EXCL == 0 {
		t.Error("expected CreateNew to request O_EXCL")
	}
}
