package cryptofs

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/absfs/absfs"
)

// Vault is the provider façade: it dispatches cleartext filesystem
// operations to PathMapper for namespace resolution and to
// OpenFileRegistry/OpenFile for content operations, enforcing readonly
// mode at every mutating entrypoint.
type Vault struct {
	host     absfs.FileSystem
	opts     Options
	vcfg     VaultConfig
	names    FilenameCryptor
	mapper   *PathMapper
	registry *OpenFileRegistry
	geometry ChunkGeometry
}

// VaultFile is the handle returned to callers; it adapts an *OpenFile
// and its own read/write position to a familiar Read/Write/Seek surface.
type VaultFile struct {
	of       *OpenFile
	position int64
}

func (f *VaultFile) Read(p []byte) (int, error) {
	n, eof, err := f.of.Read(p, f.position)
	f.position += int64(n)
	if err != nil {
		return n, err
	}
	if eof {
		return 0, io.EOF
	}
	return n, nil
}

func (f *VaultFile) Write(p []byte) (int, error) {
	n, err := f.of.Write(p, f.position)
	f.position += int64(n)
	return n, err
}

func (f *VaultFile) ReadAt(p []byte, off int64) (int, error) {
	n, eof, err := f.of.Read(p, off)
	if err != nil {
		return n, err
	}
	if eof {
		return 0, io.EOF
	}
	return n, nil
}

func (f *VaultFile) WriteAt(p []byte, off int64) (int, error) {
	return f.of.Write(p, off)
}

func (f *VaultFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		f.position = offset
	case 1:
		f.position += offset
	case 2:
		f.position = f.of.Size() + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	return f.position, nil
}

func (f *VaultFile) Truncate(size int64) error { return f.of.Truncate(size) }
func (f *VaultFile) Sync() error               { return f.of.Force(true) }
func (f *VaultFile) Close() error              { return f.of.Close() }

// Open/Create geometry constants: 32KiB cleartext chunks.
const defaultClearChunk = 32 * 1024

// CreateVault bootstraps a brand new vault at vaultPath on host: writes
// the root d/AA/BBBB.../ skeleton and the signed vault.cryptomator
// token, then opens it.
func CreateVault(host absfs.FileSystem, vaultPath string, opts Options, key KeyProvider) (*Vault, error) {
	opts = opts.withDefaults()
	vcfg := DefaultVaultConfig()

	if err := host.MkdirAll(vaultPath, 0o700); err != nil {
		return nil, newVaultError(KindIO, "createVault", vaultPath, err)
	}

	salt, err := key.GenerateSalt()
	if err != nil {
		return nil, err
	}
	masterKey, err := key.DeriveKey(salt)
	if err != nil {
		return nil, err
	}

	saltPath := vaultPath + "/" + opts.MasterkeyFilename
	if err := writeWholeFile(host, saltPath, salt); err != nil {
		return nil, err
	}

	token, err := EncodeVaultConfig(vcfg, masterKey)
	if err != nil {
		return nil, err
	}
	cfgPath := vaultPath + "/" + opts.VaultConfigFilename
	if err := writeWholeFile(host, cfgPath, []byte(token)); err != nil {
		return nil, err
	}

	rootHostDir := dirHostPath(nil, opts.Pepper)
	if err := host.MkdirAll(vaultPath+"/"+rootHostDir, 0o700); err != nil {
		return nil, newVaultError(KindIO, "createVault", vaultPath, err)
	}

	return openVaultAt(host, vaultPath, opts, vcfg, masterKey)
}

// OpenVault opens an existing vault, verifying its vault-config token
// with the key derived from key.
func OpenVault(host absfs.FileSystem, vaultPath string, opts Options, key KeyProvider) (*Vault, error) {
	opts = opts.withDefaults()

	cfgPath := vaultPath + "/" + opts.VaultConfigFilename
	tokenBytes, err := readWholeFile(host, cfgPath)
	if err != nil {
		return nil, err
	}

	saltPath := vaultPath + "/" + opts.MasterkeyFilename
	salt, err := readWholeFile(host, saltPath)
	if err != nil {
		return nil, newVaultError(KindVaultKeyInvalid, "openVault", vaultPath, err)
	}
	masterKey, err := key.DeriveKey(salt)
	if err != nil {
		return nil, err
	}

	vcfg, err := DecodeVaultConfig(string(tokenBytes), masterKey)
	if err != nil {
		return nil, newVaultError(KindVaultKeyInvalid, "openVault", vaultPath, err)
	}

	return openVaultAt(host, vaultPath, opts, *vcfg, masterKey)
}

func openVaultAt(host absfs.FileSystem, vaultPath string, opts Options, vcfg VaultConfig, masterKey []byte) (*Vault, error) {
	rootedHost := rootedFS{base: host, root: vaultPath}

	sivKey := deriveSIVKey(masterKey)
	names, err := NewFilenameCryptor(sivKey)
	if err != nil {
		return nil, err
	}
	chunkKey := deriveChunkKey(masterKey)
	chunks, err := NewChunkCryptor(vcfg.CipherCombo, chunkKey)
	if err != nil {
		return nil, err
	}
	header, err := NewHeaderCryptor(vcfg.CipherCombo, chunkKey)
	if err != nil {
		return nil, err
	}

	geometry := ChunkGeometry{
		HeaderSize:  HeaderSize(header),
		ClearChunk:  defaultClearChunk,
		CipherChunk: defaultClearChunk + chunks.Overhead(),
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}

	mapper := NewPathMapper(rootedHost, names, opts.Pepper, vcfg, opts.MaxCleartextNameLength)
	registry := NewOpenFileRegistry(rootedHost, chunks, header, geometry, opts.ChunkCacheCapacity, opts.ReadOnly, opts.Prefetch)

	return &Vault{
		host:     rootedHost,
		opts:     opts,
		vcfg:     vcfg,
		names:    names,
		mapper:   mapper,
		registry: registry,
		geometry: geometry,
	}, nil
}

// deriveSIVKey/deriveChunkKey split the masterkey into independent
// subkeys for filename vs. content cryptography, so compromising one
// doesn't compromise the other.
func deriveSIVKey(masterKey []byte) []byte {
	return expandKey(masterKey, "siv", 64)
}

func deriveChunkKey(masterKey []byte) []byte {
	return expandKey(masterKey, "content", 32)
}

// Open opens cleartextPath for reading.
func (v *Vault) Open(cleartextPath string) (*VaultFile, error) {
	return v.openFile(cleartextPath, OpenFileOptions{ReadOnly: true})
}

// Create creates or truncates cleartextPath for writing.
func (v *Vault) Create(cleartextPath string) (*VaultFile, error) {
	return v.openFile(cleartextPath, OpenFileOptions{Create: true, TruncateExisting: true})
}

// CreateNew creates cleartextPath for writing, failing AlreadyExists if
// any entry already occupies that cleartext name.
func (v *Vault) CreateNew(cleartextPath string) (*VaultFile, error) {
	return v.openFile(cleartextPath, OpenFileOptions{CreateNew: true})
}

func (v *Vault) openFile(cleartextPath string, opts OpenFileOptions) (*VaultFile, error) {
	if v.opts.ReadOnly && !opts.ReadOnly {
		return nil, ErrReadOnly
	}
	resolved, err := v.mapper.Classify(cleartextPath)
	if err != nil {
		return nil, err
	}

	var hostPath string
	switch resolved.kind {
	case KindDir:
		return nil, newVaultError(KindIsADirectory, "open", cleartextPath, fmt.Errorf("is a directory"))
	case KindSymlink:
		return nil, newVaultError(KindIsADirectory, "open", cleartextPath, fmt.Errorf("is a symlink"))
	case KindFile:
		if opts.CreateNew {
			return nil, newVaultError(KindAlreadyExists, "open", cleartextPath, fmt.Errorf("already exists"))
		}
		hostPath = v.contentPathFor(resolved.hostPath)
	case KindMissing:
		if !opts.Create && !opts.CreateNew {
			return nil, newVaultError(KindNotFound, "open", cleartextPath, fmt.Errorf("not found"))
		}
		parent := path.Dir(cleartextPath)
		parentHostDir, parentDirID, err := v.mapper.ResolveCiphertextDir(parent)
		if err != nil {
			return nil, err
		}
		component := path.Base(cleartextPath)
		if err := v.mapper.AssertCleartextNameLengthOk(component); err != nil {
			return nil, err
		}
		entryName, err := v.mapper.entryHostName(component, parentDirID, parentHostDir)
		if err != nil {
			return nil, err
		}
		hostPath = parentHostDir + "/" + entryName
		if strings.HasSuffix(entryName, ".c9s") {
			hostPath += "/contents.c9r"
		}
	}

	of, err := v.registry.Get(hostPath, opts)
	if err != nil {
		return nil, err
	}
	return &VaultFile{of: of}, nil
}

// contentPathFor returns the host path of a resolved file's actual
// ciphertext content: the entry itself if it's a bare .c9r file, or
// <entry>/contents.c9r if the entry is a shortened .c9s directory.
func (v *Vault) contentPathFor(hostPath string) string {
	if info, err := v.host.Stat(hostPath); err == nil && info.IsDir() {
		return hostPath + "/contents.c9r"
	}
	return hostPath
}

// Mkdir creates a new directory, minting a fresh DirID.
func (v *Vault) Mkdir(cleartextPath string) error {
	if v.opts.ReadOnly {
		return ErrReadOnly
	}
	existing, err := v.mapper.Classify(cleartextPath)
	if err != nil {
		return err
	}
	if existing.kind != KindMissing {
		return newVaultError(KindAlreadyExists, "mkdir", cleartextPath, fmt.Errorf("already exists"))
	}
	parent := path.Dir(cleartextPath)
	parentHostDir, parentDirID, err := v.mapper.ResolveCiphertextDir(parent)
	if err != nil {
		return err
	}
	component := path.Base(cleartextPath)
	if err := v.mapper.AssertCleartextNameLengthOk(component); err != nil {
		return err
	}
	entryName, err := v.mapper.entryHostName(component, parentDirID, parentHostDir)
	if err != nil {
		return err
	}
	entryDir := parentHostDir + "/" + entryName
	if err := v.host.MkdirAll(entryDir, 0o700); err != nil {
		return newVaultError(KindIO, "mkdir", cleartextPath, err)
	}

	childDirID := newDirID()
	if err := writeWholeFile(v.host, entryDir+"/dir.c9r", childDirID); err != nil {
		return err
	}
	childHostDir := dirHostPath(childDirID, v.opts.Pepper)
	return v.host.MkdirAll(childHostDir, 0o700)
}

// Remove deletes a file or empty directory.
func (v *Vault) Remove(cleartextPath string) error {
	if v.opts.ReadOnly {
		return ErrReadOnly
	}
	resolved, err := v.mapper.Classify(cleartextPath)
	if err != nil {
		return err
	}
	if resolved.kind == KindMissing {
		return newVaultError(KindNotFound, "remove", cleartextPath, fmt.Errorf("not found"))
	}
	if resolved.kind == KindDir {
		childHostDir := dirHostPath(resolved.dirID, v.opts.Pepper)
		if d, err := v.host.Open(childHostDir); err == nil {
			children, rerr := d.Readdirnames(-1)
			d.Close()
			if rerr == nil && len(children) > 0 {
				return newVaultError(KindIO, "remove", cleartextPath, fmt.Errorf("directory not empty"))
			}
		}
		if err := v.host.RemoveAll(childHostDir); err != nil {
			return newVaultError(KindIO, "remove", cleartextPath, err)
		}
		v.mapper.invalidate(normalizeCleartext(cleartextPath))
	}
	if err := v.host.RemoveAll(resolved.hostPath); err != nil {
		return newVaultError(KindIO, "remove", cleartextPath, err)
	}
	return nil
}

// Move renames a cleartext path, re-encoding its name under the
// destination parent's DirID. This changes the ciphertext bytes, so
// the host operation is always a real rename, never a no-op.
func (v *Vault) Move(oldPath, newPath string) error {
	if v.opts.ReadOnly {
		return ErrReadOnly
	}
	resolved, err := v.mapper.Classify(oldPath)
	if err != nil {
		return err
	}

	newParent := path.Dir(newPath)
	newParentHostDir, newParentDirID, err := v.mapper.ResolveCiphertextDir(newParent)
	if err != nil {
		return err
	}
	newComponent := path.Base(newPath)
	if err := v.mapper.AssertCleartextNameLengthOk(newComponent); err != nil {
		return err
	}
	newEntryName, err := v.mapper.entryHostName(newComponent, newParentDirID, newParentHostDir)
	if err != nil {
		return err
	}
	newHostPath := newParentHostDir + "/" + newEntryName

	if err := v.host.Rename(resolved.hostPath, newHostPath); err != nil {
		return newVaultError(KindIO, "move", oldPath, err)
	}
	if resolved.kind == KindDir {
		v.mapper.invalidate(normalizeCleartext(oldPath))
	}
	return nil
}

// Copy duplicates srcPath's cleartext content at dstPath in dst,
// re-encrypting every chunk under dst's keys. src and dst may be the
// same vault or two different ones; ciphertext bytes are never shared,
// so the copy in dst does not authenticate under src's keys.
func Copy(src *Vault, srcPath string, dst *Vault, dstPath string) error {
	if dst.opts.ReadOnly {
		return ErrReadOnly
	}
	in, err := src.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.Create(dstPath)
	if err != nil {
		return err
	}
	buf := make([]byte, defaultClearChunk)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return rerr
		}
	}
	return out.Close()
}

// Copy duplicates srcPath at dstPath within v.
func (v *Vault) Copy(srcPath, dstPath string) error {
	return Copy(v, srcPath, v, dstPath)
}

// CreateSymlink and ReadSymlink expose the symlink.go helpers.
func (v *Vault) CreateSymlink(cleartextPath, target string) error {
	return v.createSymbolicLink(cleartextPath, target)
}

func (v *Vault) ReadSymlink(cleartextPath string) (string, error) {
	return v.readSymbolicLink(cleartextPath)
}

// OpenDir returns a DirectoryStream over cleartextPath.
func (v *Vault) OpenDir(cleartextPath string, filter DirEntryFilter) (*DirectoryStream, error) {
	hostDir, dirID, err := v.mapper.ResolveCiphertextDir(cleartextPath)
	if err != nil {
		return nil, err
	}
	return NewDirectoryStream(v.host, hostDir, v.mapper, v.names, cleartextPath, dirID, filter)
}

// Stat returns cleartext attributes for cleartextPath.
func (v *Vault) Stat(cleartextPath string) (Attributes, error) {
	resolved, err := v.mapper.Classify(cleartextPath)
	if err != nil {
		return Attributes{}, err
	}
	if resolved.kind == KindMissing {
		return Attributes{}, newVaultError(KindNotFound, "stat", cleartextPath, fmt.Errorf("not found"))
	}
	view := NewAttributeView(v.registry, v.mapper, v.geometry, v.host)
	statPath := resolved.hostPath
	if resolved.kind == KindFile {
		statPath = v.contentPathFor(resolved.hostPath)
	}
	return view.Read(cleartextPath, statPath)
}

// Close flushes and closes every outstanding open file.
func (v *Vault) Close() error {
	return v.registry.CloseAll()
}

func writeWholeFile(host absfs.FileSystem, hostPath string, data []byte) error {
	f, err := host.Create(hostPath)
	if err != nil {
		return newVaultError(KindIO, "write", hostPath, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return newVaultError(KindIO, "write", hostPath, err)
	}
	return nil
}

func readWholeFile(host absfs.FileSystem, hostPath string) ([]byte, error) {
	f, err := host.Open(hostPath)
	if err != nil {
		return nil, newVaultError(KindNotFound, "read", hostPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, newVaultError(KindIO, "read", hostPath, err)
	}
	buf := make([]byte, info.Size())
	if _, err := f.Read(buf); err != nil {
		return nil, newVaultError(KindIO, "read", hostPath, err)
	}
	return buf, nil
}
