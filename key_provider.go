package cryptofs

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// The masterkey and its salt are fixed-size for every vault; KDF choice
// only changes how the key is stretched, never its shape.
const (
	masterKeySize  = 32
	masterSaltSize = 32
)

// KeyProvider supplies the masterkey used to derive a vault's filename
// and content subkeys. Loading and storing the masterkey itself (a
// masterkey.cryptomator file, an OS keychain, a recovery phrase) is an
// external concern; KeyProvider is the seam this module consumes.
type KeyProvider interface {
	DeriveKey(salt []byte) ([]byte, error)
	GenerateSalt() ([]byte, error)
}

// HashFunc names a hash usable with the PBKDF2 fallback.
type HashFunc uint8

const (
	SHA256 HashFunc = iota
	SHA512
)

// Argon2idParams tunes the recommended KDF. Zero fields take the
// defaults below, the same way Options fills its own.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

func (p Argon2idParams) withDefaults() Argon2idParams {
	if p.Memory == 0 {
		p.Memory = 64 * 1024
	}
	if p.Iterations == 0 {
		p.Iterations = 3
	}
	if p.Parallelism == 0 {
		p.Parallelism = 4
	}
	return p
}

// PBKDF2Params tunes the fallback KDF for callers interoperating with
// older key material.
type PBKDF2Params struct {
	Iterations int
	HashFunc   HashFunc
}

func (p PBKDF2Params) withDefaults() PBKDF2Params {
	if p.Iterations == 0 {
		p.Iterations = 100000
	}
	return p
}

// PasswordKeyProvider stretches a password into the masterkey. The KDF
// is bound at construction as a closure over its parameters, so
// DeriveKey itself is KDF-agnostic.
type PasswordKeyProvider struct {
	password []byte
	stretch  func(password, salt []byte) []byte
}

// NewPasswordKeyProvider builds the Argon2id-backed provider
// (recommended).
func NewPasswordKeyProvider(password []byte, params Argon2idParams) *PasswordKeyProvider {
	params = params.withDefaults()
	return &PasswordKeyProvider{
		password: password,
		stretch: func(pw, salt []byte) []byte {
			return argon2.IDKey(pw, salt, params.Iterations, params.Memory, params.Parallelism, masterKeySize)
		},
	}
}

// NewPasswordKeyProviderPBKDF2 builds the PBKDF2-backed provider.
func NewPasswordKeyProviderPBKDF2(password []byte, params PBKDF2Params) *PasswordKeyProvider {
	params = params.withDefaults()
	newHash := sha256.New
	if params.HashFunc == SHA512 {
		newHash = sha512.New
	}
	return &PasswordKeyProvider{
		password: password,
		stretch: func(pw, salt []byte) []byte {
			return pbkdf2.Key(pw, salt, params.Iterations, masterKeySize, newHash)
		},
	}
}

func (p *PasswordKeyProvider) DeriveKey(salt []byte) ([]byte, error) {
	if len(p.password) == 0 {
		return nil, newVaultError(KindVaultKeyInvalid, "deriveKey", "", fmt.Errorf("password is empty"))
	}
	if len(salt) == 0 {
		return nil, newVaultError(KindVaultKeyInvalid, "deriveKey", "", fmt.Errorf("salt is empty"))
	}
	return p.stretch(p.password, salt), nil
}

func (p *PasswordKeyProvider) GenerateSalt() ([]byte, error) {
	return randomSalt()
}

// EnvKeyProvider reads a pre-derived masterkey from an environment
// variable, for CI and headless services that can't prompt for a
// password. The salt is ignored on derivation but still generated so
// vault bootstrap works the same for both providers.
type EnvKeyProvider struct {
	envVar string
}

func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

func (e *EnvKeyProvider) DeriveKey(salt []byte) ([]byte, error) {
	raw := os.Getenv(e.envVar)
	if raw == "" {
		return nil, newVaultError(KindVaultKeyInvalid, "deriveKey", "",
			fmt.Errorf("environment variable %s not set", e.envVar))
	}
	if len(raw) != masterKeySize {
		return nil, newVaultError(KindVaultKeyInvalid, "deriveKey", "",
			fmt.Errorf("key from %s must be %d bytes, got %d", e.envVar, masterKeySize, len(raw)))
	}
	return []byte(raw), nil
}

func (e *EnvKeyProvider) GenerateSalt() ([]byte, error) {
	return randomSalt()
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, masterSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, newVaultError(KindIO, "generateSalt", "", err)
	}
	return salt, nil
}
