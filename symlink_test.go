package cryptofs

import (
	"testing"

	"github.com/absfs/memfs"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	key := NewPasswordKeyProvider([]byte("correct horse battery staple"), Argon2idParams{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1,
	})
	v, err := CreateVault(host, "/vault", Options{}, key)
	if err != nil {
		t.Fatalf("CreateVault: %v", err)
	}
	return v
}

func TestSymlinkCreateAndRead(t *testing.T) {
	v := testVault(t)
	if err := v.CreateSymlink("/shortcut", "/docs/target.txt"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	target, err := v.ReadSymlink("/shortcut")
	if err != nil {
		t.Fatalf("ReadSymlink: %v", err)
	}
	if target != "/docs/target.txt" {
		t.Errorf("ReadSymlink() = %q, want %q", target, "/docs/target.txt")
	}
}

func TestSymlinkClassifiedAsSymlinkNotDir(t *testing.T) {
	v := testVault(t)
	if err := v.CreateSymlink("/link", "/elsewhere"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	resolved, err := v.mapper.Classify("/link")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if resolved.kind != KindSymlink {
		t.Errorf("Classify().kind = %v, want KindSymlink", resolved.kind)
	}
}

func TestReadSymlinkOnNonSymlinkFails(t *testing.T) {
	v := testVault(t)
	if err := v.Mkdir("/realdir"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := v.ReadSymlink("/realdir"); !IsKind(err, KindNotADirectory) {
		t.Errorf("ReadSymlink(dir) error = %v, want KindNotADirectory", err)
	}
}

func TestCreateSymlinkRejectedOnReadOnlyVault(t *testing.T) {
	v := testVault(t)
	v.opts.ReadOnly = true
	if err := v.CreateSymlink("/link", "/target"); err != ErrReadOnly {
		t.Errorf("CreateSymlink on read-only vault error = %v, want ErrReadOnly", err)
	}
}
