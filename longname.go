package cryptofs

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/absfs/absfs"
)

const longNameContentFile = "name.c9s"

// shortenedSuffix returns base64url(sha1(fullEncName)) + ".c9s", the
// host-visible name for a shortened entry.
func shortenedSuffix(fullEncName string) string {
	sum := sha1.Sum([]byte(fullEncName))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:]) + ".c9s"
}

// LongNameStore persists and resolves filenames whose encoded form would
// exceed the host filename limit, via a hash-addressed .c9s subdirectory
// that carries the real encoded name in name.c9s.
type LongNameStore struct {
	host absfs.FileSystem
}

func NewLongNameStore(host absfs.FileSystem) *LongNameStore {
	return &LongNameStore{host: host}
}

// Install creates (or validates the existing) shortened subdirectory for
// fullEncName under ciphertextParentDir, returning its host-visible name.
// Idempotent: re-installing the same fullEncName returns the same name;
// installing a different name into an already-shortened slot that holds
// a mismatching name.c9s fails Corrupted.
func (s *LongNameStore) Install(ciphertextParentDir, fullEncName string) (string, error) {
	shortName := shortenedSuffix(fullEncName)
	dirPath := ciphertextParentDir + "/" + shortName
	namePath := dirPath + "/" + longNameContentFile

	if err := s.host.MkdirAll(dirPath, 0o700); err != nil {
		return "", newVaultError(KindIO, "installLongName", dirPath, err)
	}

	existing, err := s.readNameFile(namePath)
	switch {
	case err == nil:
		if existing != fullEncName {
			return "", newVaultError(KindCorrupted, "installLongName", namePath,
				fmt.Errorf("name.c9s content mismatch for %s", shortName))
		}
		return shortName, nil
	case IsKind(err, KindNotFound):
		if err := s.writeNameFile(namePath, fullEncName); err != nil {
			return "", err
		}
		return shortName, nil
	default:
		return "", err
	}
}

// Resolve reads back the full encoded name for a shortened entry.
func (s *LongNameStore) Resolve(ciphertextParentDir, shortNameHost string) (string, error) {
	namePath := ciphertextParentDir + "/" + shortNameHost + "/" + longNameContentFile
	return s.readNameFile(namePath)
}

func (s *LongNameStore) readNameFile(path string) (string, error) {
	f, err := s.host.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", newVaultError(KindNotFound, "readLongName", path, err)
		}
		return "", newVaultError(KindIO, "readLongName", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", newVaultError(KindIO, "readLongName", path, err)
	}
	return string(data), nil
}

func (s *LongNameStore) writeNameFile(path, content string) error {
	f, err := s.host.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return newVaultError(KindIO, "writeLongName", path, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(content)); err != nil {
		return newVaultError(KindIO, "writeLongName", path, err)
	}
	return nil
}
