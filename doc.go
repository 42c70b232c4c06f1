// Package cryptofs implements an encrypted virtual filesystem over an
// untrusted host directory (a "vault"): path and filename encryption,
// chunked authenticated file content, directory streaming, and symlinks,
// all addressed through absfs.FileSystem on the host side.
//
// # Overview
//
// A Vault maps cleartext paths to ciphertext paths on the host
// filesystem. Each directory has a random DirID; a directory's ciphertext
// location is d/<first two chars>/<remaining chars> of a digest mixing
// the DirID with a vault-wide pepper. Filenames are encrypted
// deterministically with AES-SIV, bound to their parent DirID as
// associated data so a name can't be silently relocated to a different
// parent. Overlong encoded names are "shortened" into a <hash>.c9s
// directory holding the full encoded name alongside the real content.
//
// File content is split into fixed-size cleartext chunks, each sealed
// independently after a single per-file header; ciphertext offsets are
// computed arithmetically from the header size and chunk size, so a
// reader can seek to any chunk without scanning a table.
//
// # Basic usage
//
//	host, _ := memfs.NewFS()
//	key := cryptofs.NewPasswordKeyProvider(passphrase, cryptofs.Argon2idParams{})
//	v, err := cryptofs.CreateVault(host, "/vault", cryptofs.Options{}, key)
//	if err != nil {
//	    panic(err)
//	}
//	f, _ := v.Create("/secret.txt")
//	f.Write([]byte("this will be encrypted on disk"))
//	f.Close()
//
// # Cipher combos
//
//   - AES-256-GCM
//   - ChaCha20-Poly1305
//
// Filenames always use AES-SIV (RFC 5297) regardless of the chunk/header
// combo, since filename encryption must be deterministic.
package cryptofs
