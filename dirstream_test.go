package cryptofs

import "testing"

func TestDirectoryStreamListsDecryptedEntries(t *testing.T) {
	mapper, host := testPathMapper(t)
	mkdirViaMapper(t, host, mapper, "/docs")
	rootHostDir, rootDirID, err := mapper.ResolveCiphertextDir("/")
	if err != nil {
		t.Fatalf("ResolveCiphertextDir(/): %v", err)
	}

	encName, err := mapper.entryHostName("readme.txt", rootDirID, rootHostDir)
	if err != nil {
		t.Fatalf("entryHostName: %v", err)
	}
	if err := writeWholeFile(host, rootHostDir+"/"+encName, []byte("contents")); err != nil {
		t.Fatalf("writeWholeFile: %v", err)
	}

	stream, err := NewDirectoryStream(host, rootHostDir, mapper, mapper.names, "/", rootDirID, nil)
	if err != nil {
		t.Fatalf("NewDirectoryStream: %v", err)
	}
	defer stream.Close()

	seen := map[string]EntryKind{}
	for {
		entry, ok, err := stream.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen[entry.Name] = entry.Kind
	}

	if kind, ok := seen["docs"]; !ok || kind != KindDir {
		t.Errorf("expected docs to be surfaced as KindDir, got %v (present=%v)", kind, ok)
	}
	if kind, ok := seen["readme.txt"]; !ok || kind != KindFile {
		t.Errorf("expected readme.txt to be surfaced as KindFile, got %v (present=%v)", kind, ok)
	}
}

func TestDirectoryStreamAppliesFilter(t *testing.T) {
	mapper, host := testPathMapper(t)
	mkdirViaMapper(t, host, mapper, "/a")
	mkdirViaMapper(t, host, mapper, "/b")
	rootHostDir, rootDirID, err := mapper.ResolveCiphertextDir("/")
	if err != nil {
		t.Fatalf("ResolveCiphertextDir(/): %v", err)
	}

	filter := func(e DirEntry) bool { return e.Name != "b" }
	stream, err := NewDirectoryStream(host, rootHostDir, mapper, mapper.names, "/", rootDirID, filter)
	if err != nil {
		t.Fatalf("NewDirectoryStream: %v", err)
	}
	defer stream.Close()

	var names []string
	for {
		entry, ok, err := stream.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		names = append(names, entry.Name)
	}
	for _, n := range names {
		if n == "b" {
			t.Error("filtered-out entry \"b\" should not be surfaced")
		}
	}
	if len(names) != 1 || names[0] != "a" {
		t.Errorf("names = %v, want [a]", names)
	}
}

func TestDirectoryStreamCloseThenNext(t *testing.T) {
	mapper, host := testPathMapper(t)
	rootHostDir, _, err := mapper.ResolveCiphertextDir("/")
	if err != nil {
		t.Fatalf("ResolveCiphertextDir(/): %v", err)
	}
	stream, err := NewDirectoryStream(host, rootHostDir, mapper, mapper.names, "/", nil, nil)
	if err != nil {
		t.Fatalf("NewDirectoryStream: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := stream.Next(); err != ErrClosed {
		t.Errorf("Next() after Close error = %v, want ErrClosed", err)
	}
}
