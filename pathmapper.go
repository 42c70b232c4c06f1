package cryptofs

import (
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/absfs/absfs"
)

// EntryKind classifies a resolved cleartext path.
type EntryKind int

const (
	KindMissing EntryKind = iota
	KindFile
	KindDir
	KindSymlink
)

var dirIDBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// dirHostPath computes the d/<AA>/<BBBB...> location for a directory-id,
// a 30-char base32 hash of the directory-id, split
// 2+remainder, mixed with the vault pepper if one was configured.
func dirHostPath(dirID, pepper []byte) string {
	h := sha1.New()
	h.Write(pepper)
	h.Write(dirID)
	sum := dirIDBase32.EncodeToString(h.Sum(nil))
	if len(sum) > 30 {
		sum = sum[:30]
	}
	return "d/" + sum[:2] + "/" + sum[2:]
}

// resolvedEntry is a fully-resolved ciphertext location for one cleartext
// path component: its .c9r (or shortened .c9s) host path, and, if it is
// a directory, the DirID read from its dir.c9r.
type resolvedEntry struct {
	hostPath string
	kind     EntryKind
	dirID    []byte
}

// PathMapper resolves cleartext paths to ciphertext host locations,
// caching directory-id lookups along the way.
type PathMapper struct {
	host       absfs.FileSystem
	names      FilenameCryptor
	longName   *LongNameStore
	pepper     []byte
	vcfg       VaultConfig
	maxNameLen int

	mu       sync.Mutex
	dirCache map[string][]byte // cleartext dir path -> DirID
}

func NewPathMapper(host absfs.FileSystem, names FilenameCryptor, pepper []byte, vcfg VaultConfig, maxNameLen int) *PathMapper {
	return &PathMapper{
		host:       host,
		names:      names,
		longName:   NewLongNameStore(host),
		pepper:     pepper,
		vcfg:       vcfg,
		maxNameLen: maxNameLen,
		dirCache:   map[string][]byte{"/": {}},
	}
}

// rootHostDir returns the host path of the vault's root ciphertext
// directory; the root DirID is the empty byte string.
func (m *PathMapper) rootHostDir() string {
	return dirHostPath(nil, m.pepper)
}

func (m *PathMapper) cachedDirID(cleartextDir string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.dirCache[cleartextDir]
	return id, ok
}

func (m *PathMapper) cacheDirID(cleartextDir string, id []byte) {
	m.mu.Lock()
	m.dirCache[cleartextDir] = id
	m.mu.Unlock()
}

func (m *PathMapper) invalidate(cleartextDir string) {
	m.mu.Lock()
	delete(m.dirCache, cleartextDir)
	m.mu.Unlock()
}

// entryHostName returns the host name (.c9r, or .c9s when shortened) for
// one cleartext component encrypted under parentDirID. When the encoded
// form (plus suffix) exceeds the vault's configured threshold it installs
// the long-name entry under parentHostDir and returns the .c9s name.
func (m *PathMapper) entryHostName(component string, parentDirID []byte, parentHostDir string) (string, error) {
	encName, err := m.names.Encrypt(component, parentDirID)
	if err != nil {
		return "", err
	}
	full := encName + ".c9r"
	if len(full) <= m.vcfg.ShorteningThreshold {
		return full, nil
	}
	return m.longName.Install(parentHostDir, full)
}

// classifyHostEntry determines whether a .c9r/.c9s host path is a file,
// directory, or symlink by probing for the marker files inside it; a
// bare (non-directory) .c9r is always a regular file.
func (m *PathMapper) classifyHostEntry(hostPath string) (EntryKind, []byte, error) {
	info, err := m.host.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return KindMissing, nil, nil
		}
		return KindMissing, nil, newVaultError(KindIO, "classify", hostPath, err)
	}
	if !info.IsDir() {
		return KindFile, nil, nil
	}

	// Could be a directory marker, a symlink marker, or a shortened entry's
	// own subdir. Both dir.c9r and symlink.c9r present is corruption;
	// otherwise symlink.c9r wins over dir.c9r, and dir.c9r over contents.c9r.
	base := hostPath
	if strings.HasSuffix(hostPath, ".c9s") {
		fullEncName, err := m.longName.Resolve(path.Dir(hostPath), path.Base(hostPath))
		if err != nil {
			return KindMissing, nil, err
		}
		// name.c9s must hash back to the directory holding it, or the
		// entry was moved or rewritten by hand
		if shortenedSuffix(fullEncName) != path.Base(hostPath) {
			return KindMissing, nil, newVaultError(KindCorrupted, "classify", hostPath,
				fmt.Errorf("name.c9s does not match its shortened directory name"))
		}
	}

	hasDir := m.exists(base + "/dir.c9r")
	hasSymlink := m.exists(base + "/symlink.c9r")
	hasContents := m.exists(base + "/contents.c9r")

	switch {
	case hasSymlink && hasDir:
		return KindMissing, nil, newVaultError(KindCorrupted, "classify", hostPath,
			fmt.Errorf("both dir.c9r and symlink.c9r present"))
	case hasSymlink:
		return KindSymlink, nil, nil
	case hasDir:
		dirID, err := m.readDirID(base + "/dir.c9r")
		if err != nil {
			return KindMissing, nil, err
		}
		return KindDir, dirID, nil
	case hasContents:
		return KindFile, nil, nil
	default:
		return KindMissing, nil, newVaultError(KindCorrupted, "classify", hostPath,
			fmt.Errorf("shortened entry has no recognizable marker"))
	}
}

func (m *PathMapper) exists(hostPath string) bool {
	_, err := m.host.Stat(hostPath)
	return err == nil
}

func (m *PathMapper) readDirID(hostPath string) ([]byte, error) {
	f, err := m.host.Open(hostPath)
	if err != nil {
		return nil, newVaultError(KindIO, "readDirID", hostPath, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, newVaultError(KindIO, "readDirID", hostPath, err)
	}
	return data, nil
}

// ResolveCiphertextDir walks cleartextPath (assumed to name a directory)
// component by component, consulting and refreshing the DirID cache, and
// returns the host path of its ciphertext directory.
func (m *PathMapper) ResolveCiphertextDir(cleartextPath string) (string, []byte, error) {
	return m.resolveCiphertextDir(cleartextPath, true)
}

// resolveCiphertextDir does the actual walk; allowRetry guards against
// infinite recursion when a stale cache entry is invalidated and the
// resolution is retried exactly once.
func (m *PathMapper) resolveCiphertextDir(cleartextPath string, allowRetry bool) (string, []byte, error) {
	cleartextPath = normalizeCleartext(cleartextPath)
	if cleartextPath == "/" {
		return m.rootHostDir(), nil, nil
	}
	if id, ok := m.cachedDirID(cleartextPath); ok {
		hostDir := dirHostPath(id, m.pepper)
		if m.exists(hostDir) {
			return hostDir, id, nil
		}
		// Stale cache entry: the directory-id cache outlived a move or
		// delete of the underlying ciphertext directory. Drop it and
		// resolve from the parent once more before surfacing NotFound.
		m.invalidate(cleartextPath)
		if allowRetry {
			return m.resolveCiphertextDir(cleartextPath, false)
		}
	}

	parent := path.Dir(cleartextPath)
	parentHostDir, parentDirID, err := m.ResolveCiphertextDir(parent)
	if err != nil {
		return "", nil, err
	}
	component := path.Base(cleartextPath)

	entryName, err := m.entryHostName(component, parentDirID, parentHostDir)
	if err != nil {
		return "", nil, err
	}
	hostEntry := parentHostDir + "/" + entryName

	kind, dirID, err := m.classifyHostEntry(hostEntry)
	if err != nil {
		return "", nil, err
	}
	if kind == KindMissing {
		m.invalidate(cleartextPath)
		return "", nil, newVaultError(KindNotFound, "resolveCiphertextDir", cleartextPath, fmt.Errorf("not found"))
	}
	if kind != KindDir {
		return "", nil, newVaultError(KindNotADirectory, "resolveCiphertextDir", cleartextPath, fmt.Errorf("not a directory"))
	}

	m.cacheDirID(cleartextPath, dirID)
	return dirHostPath(dirID, m.pepper), dirID, nil
}

// Classify resolves cleartextPath to its entry kind and host path.
func (m *PathMapper) Classify(cleartextPath string) (resolvedEntry, error) {
	cleartextPath = normalizeCleartext(cleartextPath)
	if cleartextPath == "/" {
		return resolvedEntry{hostPath: m.rootHostDir(), kind: KindDir}, nil
	}
	parent := path.Dir(cleartextPath)
	parentHostDir, parentDirID, err := m.ResolveCiphertextDir(parent)
	if err != nil {
		return resolvedEntry{}, err
	}
	component := path.Base(cleartextPath)

	encName, err := m.names.Encrypt(component, parentDirID)
	if err != nil {
		return resolvedEntry{}, err
	}
	full := encName + ".c9r"
	hostEntry := parentHostDir + "/" + full
	if len(full) > m.vcfg.ShorteningThreshold {
		hostEntry = parentHostDir + "/" + shortenedSuffix(full)
	}

	kind, dirID, err := m.classifyHostEntry(hostEntry)
	if err != nil {
		return resolvedEntry{}, err
	}
	return resolvedEntry{hostPath: hostEntry, kind: kind, dirID: dirID}, nil
}

// AssertCleartextNameLengthOk rejects a component up front if its
// cleartext length exceeds maxNameLen (when maxNameLen is positive),
// before any disk I/O happens. The encoded length is not checked here.
func (m *PathMapper) AssertCleartextNameLengthOk(name string) error {
	if m.maxNameLen <= 0 {
		return nil
	}
	if len(name) > m.maxNameLen {
		return newVaultError(KindNameTooLong, "assertNameLength", name,
			fmt.Errorf("cleartext name exceeds %d characters", m.maxNameLen))
	}
	return nil
}

func normalizeCleartext(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	return cleaned
}
