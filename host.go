package cryptofs

import (
	"crypto/hmac"
	"crypto/sha512"
	"os"
	"strings"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

// rootedFS confines an absfs.FileSystem to a subtree, translating every
// call by prefixing root to the given path.
type rootedFS struct {
	base absfs.FileSystem
	root string
}

func (r rootedFS) translate(name string) string {
	if name == "" || name == "/" {
		return r.root
	}
	return r.root + "/" + strings.TrimPrefix(name, "/")
}

func (r rootedFS) Separator() uint8     { return r.base.Separator() }
func (r rootedFS) ListSeparator() uint8 { return r.base.ListSeparator() }
func (r rootedFS) Chdir(dir string) error {
	return r.base.Chdir(r.translate(dir))
}
func (r rootedFS) Getwd() (string, error) { return r.base.Getwd() }
func (r rootedFS) TempDir() string        { return r.base.TempDir() }

func (r rootedFS) Open(name string) (absfs.File, error) {
	return r.base.Open(r.translate(name))
}
func (r rootedFS) Create(name string) (absfs.File, error) {
	return r.base.Create(r.translate(name))
}
func (r rootedFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	return r.base.OpenFile(r.translate(name), flag, perm)
}
func (r rootedFS) Mkdir(name string, perm os.FileMode) error {
	return r.base.Mkdir(r.translate(name), perm)
}
func (r rootedFS) MkdirAll(name string, perm os.FileMode) error {
	return r.base.MkdirAll(r.translate(name), perm)
}
func (r rootedFS) Remove(name string) error {
	return r.base.Remove(r.translate(name))
}
func (r rootedFS) RemoveAll(p string) error {
	return r.base.RemoveAll(r.translate(p))
}
func (r rootedFS) Rename(oldpath, newpath string) error {
	return r.base.Rename(r.translate(oldpath), r.translate(newpath))
}
func (r rootedFS) Stat(name string) (os.FileInfo, error) {
	return r.base.Stat(r.translate(name))
}
func (r rootedFS) Chmod(name string, mode os.FileMode) error {
	return r.base.Chmod(r.translate(name), mode)
}
func (r rootedFS) Chtimes(name string, atime, mtime time.Time) error {
	return r.base.Chtimes(r.translate(name), atime, mtime)
}
func (r rootedFS) Chown(name string, uid, gid int) error {
	return r.base.Chown(r.translate(name), uid, gid)
}
func (r rootedFS) Truncate(name string, size int64) error {
	return r.base.Truncate(r.translate(name), size)
}

// newDirID mints a fresh directory-id for a new directory. The value is
// never displayed; it only ever feeds AES-SIV associated data and the
// d/ hash path.
func newDirID() []byte {
	return []byte(uuid.NewString())
}

// expandKey derives an independent subkey of the given size from
// masterKey via HMAC-SHA512 keyed by masterKey over a fixed
// domain-separation label, so filename and content cryptography never
// share key material.
func expandKey(masterKey []byte, label string, size int) []byte {
	out := make([]byte, 0, size)
	block := []byte(label)
	for len(out) < size {
		mac := hmac.New(sha512.New, masterKey)
		mac.Write(block)
		block = mac.Sum(nil)
		out = append(out, block...)
	}
	return out[:size]
}
