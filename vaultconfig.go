package cryptofs

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// vaultConfigClaims mirrors the claims payload of vault.cryptomator: a
// signed token verified with the vault's masterkey, carrying at least
// format/shorteningThreshold/cipherCombo.
type vaultConfigClaims struct {
	Format              int    `json:"format"`
	ShorteningThreshold int    `json:"shorteningThreshold"`
	CipherCombo         string `json:"cipherCombo"`
	jwt.RegisteredClaims
}

// DecodeVaultConfig verifies token's HMAC signature with rawKey and maps
// its claims onto a VaultConfig. Wrong key surfaces as AuthenticationFailed.
func DecodeVaultConfig(token string, rawKey []byte) (*VaultConfig, error) {
	claims := &vaultConfigClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return rawKey, nil
	})
	if err != nil {
		return nil, newVaultError(KindAuthenticationFailed, "decodeVaultConfig", "", err)
	}

	combo, err := parseCipherCombo(claims.CipherCombo)
	if err != nil {
		return nil, err
	}
	cfg := &VaultConfig{
		Format:              claims.Format,
		ShorteningThreshold: claims.ShorteningThreshold,
		CipherCombo:         combo,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeVaultConfig signs cfg into the vault.cryptomator token form.
func EncodeVaultConfig(cfg VaultConfig, rawKey []byte) (string, error) {
	claims := vaultConfigClaims{
		Format:              cfg.Format,
		ShorteningThreshold: cfg.ShorteningThreshold,
		CipherCombo:         cfg.CipherCombo.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(rawKey)
	if err != nil {
		return "", fmt.Errorf("sign vault config: %w", err)
	}
	return signed, nil
}

func parseCipherCombo(s string) (CipherCombo, error) {
	switch s {
	case "aes-256-gcm", "":
		return CipherAESGCM, nil
	case "chacha20-poly1305":
		return CipherChaCha20Poly1305, nil
	default:
		return 0, newVaultError(KindVaultVersionMismatch, "parseCipherCombo", s, fmt.Errorf("unknown cipher combo %q", s))
	}
}
