package cryptofs

import (
	"strings"

	"github.com/absfs/absfs"

	"github.com/majacQ/cryptofs/internal/vaultlog"
)

// DirEntry is one decrypted directory entry.
type DirEntry struct {
	Name string
	Path string
	Kind EntryKind
}

// DirEntryFilter decides whether an entry should be surfaced; returning
// false skips it without treating it as an error.
type DirEntryFilter func(DirEntry) bool

// DirectoryStream lazily enumerates a ciphertext directory, decoding
// names back into cleartext and dereferencing shortened entries.
type DirectoryStream struct {
	host            absfs.File
	hostDir         string
	parent          *PathMapper
	longName        *LongNameStore
	names           FilenameCryptor
	parentDirID     []byte
	parentCleartext string
	filter          DirEntryFilter

	hostNames []string // host directory entries, filled lazily
	pos       int
	closed    bool
}

// NewDirectoryStream opens the host directory at hostDir and prepares to
// enumerate it as children of parentCleartext/parentDirID.
func NewDirectoryStream(host absfs.FileSystem, hostDir string, mapper *PathMapper, names FilenameCryptor, parentCleartext string, parentDirID []byte, filter DirEntryFilter) (*DirectoryStream, error) {
	f, err := host.Open(hostDir)
	if err != nil {
		return nil, newVaultError(KindIO, "openDirStream", hostDir, err)
	}
	if filter == nil {
		filter = func(DirEntry) bool { return true }
	}
	return &DirectoryStream{
		host:            f,
		hostDir:         hostDir,
		parent:          mapper,
		longName:        mapper.longName,
		names:           names,
		parentDirID:     parentDirID,
		parentCleartext: parentCleartext,
		filter:          filter,
	}, nil
}

// Next returns the next surfaced entry, or ok=false once exhausted.
// Entries that can't be classified are skipped with a logged warning,
// never surfaced as an error; one corrupt sibling shouldn't stop
// enumeration of everything else in the directory.
func (s *DirectoryStream) Next() (DirEntry, bool, error) {
	if s.closed {
		return DirEntry{}, false, ErrClosed
	}
	if s.hostNames == nil {
		raw, err := s.host.Readdirnames(-1)
		if err != nil {
			return DirEntry{}, false, newVaultError(KindIO, "readdir", s.parentCleartext, err)
		}
		s.hostNames = raw
	}

	for s.pos < len(s.hostNames) {
		hostName := s.hostNames[s.pos]
		s.pos++

		fullEncName, err := s.dereference(hostName)
		if err != nil {
			vaultlog.Warn("skipping unclassifiable directory entry", "entry", hostName, "error", err.Error())
			continue
		}
		encName := strings.TrimSuffix(fullEncName, ".c9r")
		cleartext, err := s.names.Decrypt(encName, s.parentDirID)
		if err != nil {
			vaultlog.Warn("skipping entry with unauthentic name", "entry", hostName, "error", err.Error())
			continue
		}

		childPath := normalizeCleartext(s.parentCleartext + "/" + cleartext)
		resolved, err := s.parent.Classify(childPath)
		if err != nil || resolved.kind == KindMissing {
			vaultlog.Warn("skipping entry that failed to classify", "entry", hostName)
			continue
		}

		entry := DirEntry{Name: cleartext, Path: childPath, Kind: resolved.kind}
		if !s.filter(entry) {
			continue
		}
		return entry, true, nil
	}
	return DirEntry{}, false, nil
}

func (s *DirectoryStream) dereference(hostName string) (string, error) {
	if strings.HasSuffix(hostName, ".c9r") {
		return hostName, nil
	}
	if strings.HasSuffix(hostName, ".c9s") {
		return s.longName.Resolve(s.hostDir, hostName)
	}
	return "", newVaultError(KindCorrupted, "dereference", hostName, errNotAnEntry)
}

var errNotAnEntry = newVaultError(KindCorrupted, "dereference", "", nil)

// Close releases the host directory iterator.
func (s *DirectoryStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.host.Close()
}
