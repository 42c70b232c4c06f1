package cryptofs

import (
	"encoding/base32"
	"fmt"
	"strings"
)

var nameBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// FilenameCryptor encrypts and decrypts a single cleartext path component,
// binding the result to its parent directory-id as associated data so a
// name authenticated under one parent can't be replayed under another.
type FilenameCryptor interface {
	Encrypt(cleartext string, parentDirID []byte) (string, error)
	Decrypt(encodedName string, parentDirID []byte) (string, error)
}

// sivFilenameCryptor is the deterministic default: RFC 5297 AES-SIV with
// the parent DirID as associated data, binding each name to its parent.
type sivFilenameCryptor struct {
	siv *sivCryptor
}

// NewFilenameCryptor builds the default AES-SIV filename codec. key must
// be 64 bytes (the SIV S2V/CTR key split).
func NewFilenameCryptor(key []byte) (FilenameCryptor, error) {
	siv, err := newSIVCryptor(key)
	if err != nil {
		return nil, fmt.Errorf("filename cryptor: %w", err)
	}
	return &sivFilenameCryptor{siv: siv}, nil
}

func (c *sivFilenameCryptor) Encrypt(cleartext string, parentDirID []byte) (string, error) {
	if cleartext == "" {
		return "", newVaultError(KindInvalidName, "encryptName", cleartext, fmt.Errorf("cleartext name cannot be empty"))
	}
	if strings.ContainsAny(cleartext, "/\\") {
		return "", newVaultError(KindInvalidName, "encryptName", cleartext, fmt.Errorf("name contains a path separator"))
	}
	return nameBase32.EncodeToString(c.siv.Seal([]byte(cleartext), parentDirID)), nil
}

func (c *sivFilenameCryptor) Decrypt(encodedName string, parentDirID []byte) (string, error) {
	raw, err := nameBase32.DecodeString(encodedName)
	if err != nil {
		return "", newVaultError(KindCorrupted, "decryptName", encodedName, err)
	}
	cleartext, err := c.siv.Open(raw, parentDirID)
	if err != nil {
		return "", err
	}
	return string(cleartext), nil
}
