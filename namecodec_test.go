package cryptofs

import "testing"

func testFilenameCryptor(t *testing.T) FilenameCryptor {
	t.Helper()
	c, err := NewFilenameCryptor(testSIVKey())
	if err != nil {
		t.Fatalf("NewFilenameCryptor: %v", err)
	}
	return c
}

func TestFilenameCryptorRoundTrip(t *testing.T) {
	c := testFilenameCryptor(t)
	parentDirID := []byte("dir-id-1")

	encoded, err := c.Encrypt("invoice-2026.pdf", parentDirID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decoded, err := c.Decrypt(encoded, parentDirID)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decoded != "invoice-2026.pdf" {
		t.Errorf("Decrypt() = %q, want %q", decoded, "invoice-2026.pdf")
	}
}

func TestFilenameCryptorBoundToParent(t *testing.T) {
	c := testFilenameCryptor(t)
	encoded, err := c.Encrypt("notes.txt", []byte("parent-a"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.Decrypt(encoded, []byte("parent-b")); !IsKind(err, KindAuthenticationFailed) {
		t.Errorf("expected KindAuthenticationFailed when decrypting under a different parent, got %v", err)
	}
}

func TestFilenameCryptorRejectsEmptyOrSeparators(t *testing.T) {
	c := testFilenameCryptor(t)
	cases := []string{"", "a/b", "a\\b"}
	for _, name := range cases {
		if _, err := c.Encrypt(name, []byte("parent")); !IsKind(err, KindInvalidName) {
			t.Errorf("Encrypt(%q) error = %v, want KindInvalidName", name, err)
		}
	}
}

func TestFilenameCryptorRejectsCorruptEncoding(t *testing.T) {
	c := testFilenameCryptor(t)
	if _, err := c.Decrypt("not-valid-base32!!!", []byte("parent")); !IsKind(err, KindCorrupted) {
		t.Errorf("Decrypt of invalid base32 error = %v, want KindCorrupted", err)
	}
}

func TestFilenameCryptorEncodedNameIsBase32(t *testing.T) {
	c := testFilenameCryptor(t)
	encoded, err := c.Encrypt("x", []byte("parent"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := nameBase32.DecodeString(encoded); err != nil {
		t.Errorf("encoded name %q is not valid unpadded base32: %v", encoded, err)
	}
}
