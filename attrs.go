package cryptofs

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/majacQ/cryptofs/internal/vaultlog"
)

func warnNegativeClearSize(ciphertextTotal int64) {
	vaultlog.Warn("clamping negative cleartext size to zero", "ciphertextTotal", fmt.Sprint(ciphertextTotal))
}

// AttributesKind tags which variant of attributes an Attributes value
// carries.
type AttributesKind int

const (
	AttrBasic AttributesKind = iota
	AttrPosix
	AttrDos
)

type PosixBits struct {
	Permissions os.FileMode
	UID, GID    int
}

type DosBits struct {
	Hidden, System, Archive, ReadOnly bool
}

// Attributes is an immutable snapshot returned by AttributeView.Read;
// later deletion of the underlying file never mutates a value already
// returned.
type Attributes struct {
	Kind    AttributesKind
	Size    int64
	IsDir   bool
	ModTime time.Time
	Posix   PosixBits
	Dos     DosBits
}

// AttributeView reads cleartext attributes either from a live OpenFile
// (if one exists for the path) or by recomputing cleartext size from
// ciphertext size and chunk geometry.
type AttributeView struct {
	registry *OpenFileRegistry
	mapper   *PathMapper
	geometry ChunkGeometry
	host     hostStater
}

type hostStater interface {
	Stat(name string) (os.FileInfo, error)
}

func NewAttributeView(registry *OpenFileRegistry, mapper *PathMapper, geometry ChunkGeometry, host hostStater) *AttributeView {
	return &AttributeView{registry: registry, mapper: mapper, geometry: geometry, host: host}
}

// Read returns a snapshot of cleartextPath's attributes. A live OpenFile (if one exists for hostPath) is authoritative
// for size and modification time; otherwise cleartext size is recomputed
// from the ciphertext's host size via the chunk geometry.
func (v *AttributeView) Read(cleartextPath string, hostPath string) (Attributes, error) {
	info, err := v.host.Stat(hostPath)
	if err != nil {
		return Attributes{}, newVaultError(KindNotFound, "readAttributes", cleartextPath, err)
	}
	if info.IsDir() {
		return attributesFromInfo(info, info.Size()), nil
	}

	if v.registry != nil {
		if of, ok := v.registry.Peek(hostPath); ok {
			attrs := attributesFromInfo(info, of.Size())
			attrs.ModTime = of.ModTime()
			return attrs, nil
		}
	}

	size := v.cleartextSizeFromCiphertext(info.Size())
	attrs := attributesFromInfo(info, size)
	return attrs, nil
}

// cleartextSizeFromCiphertext computes cleartext size = payload - overhead*ceil(payload/C), clamped to 0 with a warning
// if the arithmetic would go negative (truncated/corrupt ciphertext).
func (v *AttributeView) cleartextSizeFromCiphertext(ciphertextTotal int64) int64 {
	payload := ciphertextTotal - int64(v.geometry.HeaderSize)
	if payload < 0 {
		// ciphertext total < H: no full header present, so there is no
		// partial header to dereference; report size 0 and warn.
		warnNegativeClearSize(ciphertextTotal)
		return 0
	}
	if payload == 0 {
		// header-only file: empty, and not a corruption.
		return 0
	}
	overhead := int64(v.geometry.CipherChunk - v.geometry.ClearChunk)
	numChunks := (payload + int64(v.geometry.CipherChunk) - 1) / int64(v.geometry.CipherChunk)
	size := payload - overhead*numChunks
	if size < 0 {
		warnNegativeClearSize(ciphertextTotal)
		return 0
	}
	return size
}

func attributesFromInfo(info os.FileInfo, size int64) Attributes {
	attrs := Attributes{Kind: AttrBasic, Size: size, IsDir: info.IsDir(), ModTime: info.ModTime()}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		attrs.Kind = AttrPosix
		attrs.Posix = PosixBits{
			Permissions: info.Mode().Perm(),
			UID:         int(stat.Uid),
			GID:         int(stat.Gid),
		}
	}
	return attrs
}
