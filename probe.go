package cryptofs

import (
	"fmt"

	"github.com/absfs/absfs"
)

// ProbeResult is the outcome of a directory-structure probe.
type ProbeResult int

const (
	ProbeUnrelated ProbeResult = iota
	ProbeMaybeLegacy
	ProbeVault
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeVault:
		return "VAULT"
	case ProbeMaybeLegacy:
		return "MAYBE_LEGACY"
	default:
		return "UNRELATED"
	}
}

// Probe classifies vaultPath: VAULT if d/ and the
// vault-config file are both readable; MAYBE_LEGACY if d/ exists and a
// masterkey file exists but no vault-config; UNRELATED otherwise.
func Probe(host absfs.FileSystem, vaultPath, vaultConfigName, masterkeyName string) (ProbeResult, error) {
	info, err := host.Stat(vaultPath)
	if err != nil {
		return ProbeUnrelated, newVaultError(KindNotFound, "probe", vaultPath, err)
	}
	if !info.IsDir() {
		return ProbeUnrelated, newVaultError(KindNotADirectory, "probe", vaultPath, fmt.Errorf("not a directory"))
	}

	hasDataDir := exists(host, vaultPath+"/d")
	hasVaultConfig := vaultConfigName != "" && exists(host, vaultPath+"/"+vaultConfigName)
	hasMasterkey := masterkeyName != "" && exists(host, vaultPath+"/"+masterkeyName)

	switch {
	case hasDataDir && hasVaultConfig:
		return ProbeVault, nil
	case hasDataDir && hasMasterkey:
		return ProbeMaybeLegacy, nil
	default:
		return ProbeUnrelated, nil
	}
}

func exists(host absfs.FileSystem, p string) bool {
	_, err := host.Stat(p)
	return err == nil
}
