package cryptofs

import "testing"

func TestParseVaultURI(t *testing.T) {
	uri, err := ParseVaultURI("cryptomator://my-webdav-vault/docs/report.pdf")
	if err != nil {
		t.Fatalf("ParseVaultURI: %v", err)
	}
	if uri.VaultHostURI != "my-webdav-vault" {
		t.Errorf("VaultHostURI = %q, want %q", uri.VaultHostURI, "my-webdav-vault")
	}
	if uri.PathInsideVault != "/docs/report.pdf" {
		t.Errorf("PathInsideVault = %q, want %q", uri.PathInsideVault, "/docs/report.pdf")
	}
}

func TestParseVaultURIRejects(t *testing.T) {
	cases := []string{
		"http://host/path",
		"cryptomator:///no-host/path",
		"cryptomator://host",
		"cryptomator://host/",
		"cryptomator://host/path?query=1",
		"cryptomator://host/path#fragment",
	}
	for _, raw := range cases {
		if _, err := ParseVaultURI(raw); err == nil {
			t.Errorf("ParseVaultURI(%q) expected error, got nil", raw)
		}
	}
}
