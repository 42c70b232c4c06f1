package cryptofs

import (
	"fmt"
	"net/url"
)

// VaultURI is the parsed form of cryptomator://<host-uri-of-vault>/<path-inside-vault>.
type VaultURI struct {
	VaultHostURI    string
	PathInsideVault string
}

// ParseVaultURI parses raw: scheme must be "cryptomator",
// authority required, path required, no query or fragment.
func ParseVaultURI(raw string) (VaultURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return VaultURI{}, newVaultError(KindInvalidName, "parseVaultURI", raw, err)
	}
	if u.Scheme != "cryptomator" {
		return VaultURI{}, newVaultError(KindInvalidName, "parseVaultURI", raw,
			fmt.Errorf("scheme must be cryptomator, got %q", u.Scheme))
	}
	if u.Host == "" {
		return VaultURI{}, newVaultError(KindInvalidName, "parseVaultURI", raw, fmt.Errorf("authority required"))
	}
	if u.Path == "" || u.Path == "/" {
		return VaultURI{}, newVaultError(KindInvalidName, "parseVaultURI", raw, fmt.Errorf("path inside vault required"))
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return VaultURI{}, newVaultError(KindInvalidName, "parseVaultURI", raw, fmt.Errorf("query and fragment are not allowed"))
	}
	return VaultURI{VaultHostURI: u.Host, PathInsideVault: u.Path}, nil
}
