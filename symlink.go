package cryptofs

import (
	"errors"
	"path"
)

const symlinkMarker = "symlink.c9r"

// createSymbolicLink stores target as the cleartext content of
// <encName>.c9r/symlink.c9r: a regular encrypted file whose content
// happens to be the UTF-8 target string, materializing the symlink
// marker that distinguishes it from a directory (dir.c9r) at classify
// time.
func (v *Vault) createSymbolicLink(cleartextPath, target string) error {
	if v.opts.ReadOnly {
		return ErrReadOnly
	}
	component := path.Base(cleartextPath)
	if err := v.mapper.AssertCleartextNameLengthOk(component); err != nil {
		return err
	}

	parent := path.Dir(cleartextPath)
	parentHostDir, parentDirID, err := v.mapper.ResolveCiphertextDir(parent)
	if err != nil {
		return err
	}
	// entryHostName shortens the encoded name through LongNameStore when
	// it exceeds the vault's threshold, the same as every other entry
	// kind; a symlink is not exempt from the host filename limit.
	entryName, err := v.mapper.entryHostName(component, parentDirID, parentHostDir)
	if err != nil {
		return err
	}
	entryDir := parentHostDir + "/" + entryName
	if err := v.host.MkdirAll(entryDir, 0o700); err != nil {
		return newVaultError(KindIO, "createSymlink", cleartextPath, err)
	}

	markerPath := entryDir + "/" + symlinkMarker
	of, err := v.registry.Get(markerPath, OpenFileOptions{Create: true, TruncateExisting: true})
	if err != nil {
		return err
	}
	defer of.Close()
	if _, err := of.Write([]byte(target), 0); err != nil {
		return err
	}
	return nil
}

// readSymbolicLink reads a symlink's target through an ephemeral
// OpenFile and decodes it as UTF-8.
func (v *Vault) readSymbolicLink(cleartextPath string) (string, error) {
	resolved, err := v.mapper.Classify(cleartextPath)
	if err != nil {
		return "", err
	}
	if resolved.kind != KindSymlink {
		return "", newVaultError(KindNotADirectory, "readSymlink", cleartextPath, errNotASymlink)
	}
	markerPath := resolved.hostPath + "/" + symlinkMarker
	of, err := v.registry.Get(markerPath, OpenFileOptions{ReadOnly: true})
	if err != nil {
		return "", err
	}
	defer of.Close()

	size := of.Size()
	buf := make([]byte, size)
	n, _, err := of.Read(buf, 0)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

var errNotASymlink = errors.New("not a symlink")
