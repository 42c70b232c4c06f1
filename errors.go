package cryptofs

import (
	"errors"
	"fmt"
)

// Kind categorizes a VaultError independently of its message, so
// callers can branch on failure class without parsing strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindNotADirectory
	KindIsADirectory
	KindNameTooLong
	KindAuthenticationFailed
	KindVaultKeyInvalid
	KindVaultVersionMismatch
	KindReadOnly
	KindClosed
	KindCorrupted
	KindIO
	KindInvalidName
	KindOverlap
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotADirectory:
		return "not_a_directory"
	case KindIsADirectory:
		return "is_a_directory"
	case KindNameTooLong:
		return "name_too_long"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindVaultKeyInvalid:
		return "vault_key_invalid"
	case KindVaultVersionMismatch:
		return "vault_version_mismatch"
	case KindReadOnly:
		return "read_only"
	case KindClosed:
		return "closed"
	case KindCorrupted:
		return "corrupted"
	case KindIO:
		return "io"
	case KindInvalidName:
		return "invalid_name"
	case KindOverlap:
		return "overlap"
	default:
		return "unknown"
	}
}

// VaultError is the carrier type for every error the core surfaces.
// Op and Path are best-effort context.
type VaultError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *VaultError) Error() string {
	switch {
	case e.Path != "" && e.Op != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *VaultError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &VaultError{Kind: KindNotFound}) work by kind.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newVaultError(kind Kind, op, path string, err error) *VaultError {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &VaultError{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not (or
// does not wrap) a *VaultError.
func KindOf(err error) Kind {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a *VaultError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Sentinel errors for cases that don't need path/op context.
var (
	ErrNilBuffer      = errors.New("buffer cannot be nil")
	ErrNegativeOffset = errors.New("negative offset not allowed")
	ErrClosed         = &VaultError{Kind: KindClosed, Err: errors.New("handle is closed")}
	ErrReadOnly       = &VaultError{Kind: KindReadOnly, Err: errors.New("vault is mounted read-only")}
)
