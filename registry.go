package cryptofs

import (
	"errors"
	"os"
	"sync"

	"github.com/absfs/absfs"
)

var errEmptyHostPath = errors.New("empty host path")

// OpenFileRegistry interns at most one OpenFile per normalized host
// path. A concurrent second opener of the same path reuses the existing
// entry instead of racing to build a duplicate one.
type OpenFileRegistry struct {
	host     absfs.FileSystem
	chunks   ChunkCryptor
	header   HeaderCryptor
	geometry ChunkGeometry
	cacheCap int
	readOnly bool
	prefetch PrefetchConfig

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex // per-path creation lock
	entries  map[string]*OpenFile
}

func NewOpenFileRegistry(host absfs.FileSystem, chunks ChunkCryptor, header HeaderCryptor, geometry ChunkGeometry, cacheCap int, readOnly bool, prefetch PrefetchConfig) *OpenFileRegistry {
	return &OpenFileRegistry{
		host:     host,
		chunks:   chunks,
		header:   header,
		geometry: geometry,
		cacheCap: cacheCap,
		readOnly: readOnly,
		prefetch: prefetch,
		inFlight: make(map[string]*sync.Mutex),
		entries:  make(map[string]*OpenFile),
	}
}

// Get returns the interned OpenFile for hostPath, opening it on the
// host filesystem if this is the first opener, and increments its
// open-count. Readonly registries reject writable opens here.
func (r *OpenFileRegistry) Get(hostPath string, opts OpenFileOptions) (*OpenFile, error) {
	if hostPath == "" {
		return nil, newVaultError(KindInvalidName, "openFile", hostPath, errEmptyHostPath)
	}
	if r.readOnly && !opts.ReadOnly {
		return nil, ErrReadOnly
	}

	r.mu.Lock()
	if of, ok := r.entries[hostPath]; ok {
		r.mu.Unlock()
		if err := of.open(opts); err != nil {
			return nil, err
		}
		return of, nil
	}
	creationLock, ok := r.inFlight[hostPath]
	if !ok {
		creationLock = &sync.Mutex{}
		r.inFlight[hostPath] = creationLock
	}
	r.mu.Unlock()

	creationLock.Lock()
	defer creationLock.Unlock()

	r.mu.Lock()
	if of, ok := r.entries[hostPath]; ok {
		r.mu.Unlock()
		if err := of.open(opts); err != nil {
			return nil, err
		}
		return of, nil
	}
	r.mu.Unlock()

	hostFile, err := r.host.OpenFile(hostPath, openFlags(opts), 0o600)
	if err != nil {
		return nil, newVaultError(KindIO, "openFile", hostPath, err)
	}

	of := newOpenFile(hostPath, hostFile, r.chunks, r.header, r.geometry, r.cacheCap, r.prefetch, func() {
		r.forget(hostPath)
	})
	if err := of.open(opts); err != nil {
		hostFile.Close()
		return nil, err
	}

	r.mu.Lock()
	r.entries[hostPath] = of
	delete(r.inFlight, hostPath)
	r.mu.Unlock()

	return of, nil
}

// Peek returns the interned OpenFile for hostPath without opening it or
// affecting its open-count, for callers that only want to consult live
// state (size, mod time) if a handle already exists.
func (r *OpenFileRegistry) Peek(hostPath string) (*OpenFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	of, ok := r.entries[hostPath]
	return of, ok
}

func (r *OpenFileRegistry) forget(hostPath string) {
	r.mu.Lock()
	delete(r.entries, hostPath)
	r.mu.Unlock()
}

// CloseAll flushes and closes every outstanding OpenFile; used on vault
// shutdown.
func (r *OpenFileRegistry) CloseAll() error {
	r.mu.Lock()
	all := make([]*OpenFile, 0, len(r.entries))
	for _, of := range r.entries {
		all = append(all, of)
	}
	r.mu.Unlock()

	var first error
	for _, of := range all {
		// Close until the file reports ErrClosed, so a file opened more
		// than once is released too.
		for {
			err := of.Close()
			if err == ErrClosed {
				break
			}
			if err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func openFlags(opts OpenFileOptions) int {
	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	if opts.Create {
		flags |= os.O_CREATE
	}
	if opts.CreateNew {
		flags |= os.O_CREATE | os.O_EXCL
	}
	if opts.TruncateExisting {
		flags |= os.O_TRUNC
	}
	return flags
}
