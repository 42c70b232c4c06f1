package cryptofs

import "fmt"

// Options carries the knobs a caller sets when opening or creating a
// vault. Everything here is local configuration, not vault-wide format
// state (that's VaultConfig, decoded from the vault's own token).
type Options struct {
	MasterkeyFilename      string
	VaultConfigFilename    string
	ReadOnly               bool
	MaxCleartextNameLength int
	Pepper                 []byte
	Prefetch               PrefetchConfig
	ChunkCacheCapacity     int
}

func (o Options) withDefaults() Options {
	if o.MasterkeyFilename == "" {
		o.MasterkeyFilename = "masterkey.cryptomator"
	}
	if o.VaultConfigFilename == "" {
		o.VaultConfigFilename = "vault.cryptomator"
	}
	if o.MaxCleartextNameLength == 0 {
		o.MaxCleartextNameLength = 220
	}
	if o.ChunkCacheCapacity == 0 {
		o.ChunkCacheCapacity = 5
	}
	if o.Prefetch == (PrefetchConfig{}) {
		o.Prefetch = defaultPrefetchConfig()
	}
	return o
}

// validate rejects option values withDefaults can't repair. These are
// caller mistakes at construction time, not vault state, so plain
// errors suffice.
func (o Options) validate() error {
	if o.ChunkCacheCapacity < 1 || o.ChunkCacheCapacity > 1024 {
		return fmt.Errorf("chunk cache capacity out of range: %d", o.ChunkCacheCapacity)
	}
	if o.Prefetch.Workers < 0 || o.Prefetch.Workers > 1024 {
		return fmt.Errorf("prefetch workers out of range: %d", o.Prefetch.Workers)
	}
	if o.Prefetch.Threshold < 1 {
		return fmt.Errorf("prefetch threshold must be at least 1, got %d", o.Prefetch.Threshold)
	}
	return nil
}

// VaultConfig is the vault-wide format state, normally decoded from the
// vault's signed vault.cryptomator token (see DecodeVaultConfig). It is
// never derived from Options: Options is per-process convenience, this
// is durable, shared vault state.
type VaultConfig struct {
	Format              int
	ShorteningThreshold int
	CipherCombo         CipherCombo
}

func (c VaultConfig) Validate() error {
	if c.Format < 1 {
		return newVaultError(KindVaultVersionMismatch, "validate", "", fmt.Errorf("unsupported vault format %d", c.Format))
	}
	if c.ShorteningThreshold <= 0 {
		return newVaultError(KindInvalidName, "validate", "", fmt.Errorf("shortening threshold must be positive, got %d", c.ShorteningThreshold))
	}
	return nil
}

func DefaultVaultConfig() VaultConfig {
	return VaultConfig{Format: 8, ShorteningThreshold: 220, CipherCombo: CipherAESGCM}
}
