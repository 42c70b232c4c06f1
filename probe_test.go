package cryptofs

import (
	"testing"

	"github.com/absfs/memfs"
)

func TestProbeVault(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	if err := host.MkdirAll("/vault/d", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := writeWholeFile(host, "/vault/vault.cryptomator", []byte("token")); err != nil {
		t.Fatalf("writeWholeFile: %v", err)
	}

	result, err := Probe(host, "/vault", "vault.cryptomator", "masterkey.cryptomator")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result != ProbeVault {
		t.Errorf("Probe() = %v, want ProbeVault", result)
	}
}

func TestProbeMaybeLegacy(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	if err := host.MkdirAll("/vault/d", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := writeWholeFile(host, "/vault/masterkey.cryptomator", []byte("salt+params")); err != nil {
		t.Fatalf("writeWholeFile: %v", err)
	}

	result, err := Probe(host, "/vault", "vault.cryptomator", "masterkey.cryptomator")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result != ProbeMaybeLegacy {
		t.Errorf("Probe() = %v, want ProbeMaybeLegacy", result)
	}
}

func TestProbeUnrelated(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	if err := host.MkdirAll("/empty", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	result, err := Probe(host, "/empty", "vault.cryptomator", "masterkey.cryptomator")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result != ProbeUnrelated {
		t.Errorf("Probe() = %v, want ProbeUnrelated", result)
	}
}

func TestProbeMissingPath(t *testing.T) {
	host, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	if _, err := Probe(host, "/nowhere", "vault.cryptomator", "masterkey.cryptomator"); !IsKind(err, KindNotFound) {
		t.Errorf("Probe on missing path error = %v, want KindNotFound", err)
	}
}
