package cryptofs

import (
	"fmt"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

type openFileState int

const (
	stateUninitialized openFileState = iota
	stateOpen
	stateClosing
	stateClosed
)

// ChunkGeometry parameterizes the arithmetic ciphertext layout: cleartext
// chunk size P, its ciphertext size C = P + overhead, and header size H.
type ChunkGeometry struct {
	HeaderSize  int
	ClearChunk  int
	CipherChunk int
}

func (g ChunkGeometry) ciphertextOffset(chunkIndex int) int64 {
	return int64(g.HeaderSize) + int64(chunkIndex)*int64(g.CipherChunk)
}

// maxChunkIndex bounds the chunk index space so ciphertext offsets never
// overflow int64.
func (g ChunkGeometry) maxChunkIndex() uint64 {
	return uint64((int64(1)<<62 - int64(g.HeaderSize)) / int64(g.CipherChunk))
}

// rangeLock is the chunk-aligned ciphertext byte range a cleartext lock
// request translates to: never a passthrough of
// cleartext offsets, always H + floor(pos/P)*C .. H + ceil((pos+len)/P)*C.
type rangeLock struct {
	start, end int64
	exclusive  bool
}

// fileLocker is implemented by host files that support advisory locking;
// absfs.File doesn't guarantee this, so OpenFile degrades to no-op
// locking (still correctly computing the translated range) when the host
// file doesn't implement it.
type fileLocker interface {
	Lock(start, end int64, exclusive bool) error
	Unlock(start, end int64) error
}

// OpenFile is the per-inode runtime state: header, cached cleartext
// size, chunk cache, open-count, and the deferred write-error queue. At
// most one OpenFile exists per normalized host path at a time, created
// and destroyed through OpenFileRegistry.
type OpenFile struct {
	mu    sync.Mutex
	state openFileState

	hostPath  string
	host      absfs.File
	chunks    ChunkCryptor
	header    HeaderCryptor
	geometry  ChunkGeometry
	headerObj *FileHeader
	cache     *ChunkCache

	size      int64
	modTime   time.Time
	openCount int
	readOnly  bool
	prefetch  PrefetchConfig
	heldLocks []rangeLock

	forget func()
}

// OpenFileOptions mirrors the os.O_* flags a caller passes to open/create.
// CreateNew insists the entry not exist yet (O_EXCL); both it and
// TruncateExisting start from a fresh header instead of reading one.
type OpenFileOptions struct {
	Create           bool
	CreateNew        bool
	TruncateExisting bool
	ReadOnly         bool
}

func newOpenFile(hostPath string, host absfs.File, chunks ChunkCryptor, header HeaderCryptor, geometry ChunkGeometry, cacheCap int, prefetch PrefetchConfig, forget func()) *OpenFile {
	of := &OpenFile{
		hostPath: hostPath,
		host:     host,
		chunks:   chunks,
		header:   header,
		geometry: geometry,
		prefetch: prefetch,
		forget:   forget,
	}
	of.cache = NewChunkCache(cacheCap, of.writeBackChunk)
	return of
}

// open increments openCount, loading or initializing the header on first
// open. Create/CreateNew/TruncateExisting bypass reading an existing header.
func (f *OpenFile) open(opts OpenFileOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readOnly = f.readOnly || opts.ReadOnly
	if f.state == stateOpen {
		f.openCount++
		return nil
	}
	if f.state == stateClosing || f.state == stateClosed {
		return newVaultError(KindClosed, "open", f.hostPath, fmt.Errorf("handle already closing"))
	}

	if opts.Create || opts.CreateNew || opts.TruncateExisting {
		f.headerObj = &FileHeader{ClearTextSize: 0}
		f.size = 0
		if opts.TruncateExisting {
			if err := f.host.Truncate(0); err != nil {
				return newVaultError(KindIO, "open", f.hostPath, err)
			}
		}
		sealed, err := f.headerObj.Seal(f.header)
		if err != nil {
			return err
		}
		if _, err := f.host.WriteAt(sealed, 0); err != nil {
			return newVaultError(KindIO, "open", f.hostPath, err)
		}
	} else {
		sealed := make([]byte, HeaderSize(f.header))
		n, err := f.host.ReadAt(sealed, 0)
		if err != nil && n < len(sealed) {
			return newVaultError(KindIO, "open", f.hostPath, err)
		}
		hdr, err := OpenFileHeader(f.header, sealed)
		if err != nil {
			return err
		}
		f.headerObj = hdr
		f.size = hdr.ClearTextSize
	}

	f.state = stateOpen
	f.openCount = 1
	f.modTime = time.Now()
	return nil
}

// ModTime returns the live in-memory modification time, updated on every
// write so AttributeView can report it without a host stat round trip.
func (f *OpenFile) ModTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modTime
}

func (f *OpenFile) chunkIndexFor(pos int64) int { return int(pos / int64(f.geometry.ClearChunk)) }

func (f *OpenFile) loadChunk(index int) ([]byte, error) {
	if err := f.geometry.checkChunkIndex(index); err != nil {
		return nil, err
	}
	if data, ok := f.cache.Get(index); ok {
		return data, nil
	}
	ciphertext := make([]byte, f.geometry.CipherChunk)
	n, err := f.host.ReadAt(ciphertext, f.geometry.ciphertextOffset(index))
	if err != nil && n == 0 {
		// chunk never written: treat as all-zero cleartext
		data := make([]byte, f.geometry.ClearChunk)
		f.cache.Put(index, data, false)
		return data, nil
	}
	cleartext, err := f.chunks.OpenChunk(f.headerNonce(), uint64(index), ciphertext[:n])
	if err != nil {
		return nil, newVaultError(KindAuthenticationFailed, "readChunk", f.hostPath, err)
	}
	f.cache.Put(index, cleartext, false)
	return cleartext, nil
}

// prefetchChunks decrypts every chunk in [firstIndex, lastIndex] not
// already cached, fanning the decryption out across workers per
// f.prefetch when the span is wide enough to be worth it (sequential
// reads spanning several chunks).
// Ciphertext is still read from the host one chunk at a time, under the
// OpenFile lock, since absfs.File offers no concurrency guarantee for
// overlapping ReadAt calls.
func (f *OpenFile) prefetchChunks(firstIndex, lastIndex int) error {
	if lastIndex <= firstIndex {
		return nil
	}
	var jobs []chunkFetch
	for idx := firstIndex; idx <= lastIndex; idx++ {
		if _, ok := f.cache.Get(idx); ok {
			continue
		}
		ciphertext := make([]byte, f.geometry.CipherChunk)
		n, err := f.host.ReadAt(ciphertext, f.geometry.ciphertextOffset(idx))
		if err != nil && n == 0 {
			f.cache.Put(idx, make([]byte, f.geometry.ClearChunk), false)
			continue
		}
		jobs = append(jobs, chunkFetch{index: uint64(idx), ciphertext: ciphertext[:n]})
	}
	if len(jobs) == 0 {
		return nil
	}
	if err := decryptStriped(f.chunks, f.headerNonce(), f.prefetch, jobs); err != nil {
		return err
	}
	for _, j := range jobs {
		f.cache.Put(int(j.index), j.cleartext, false)
	}
	return nil
}

func (f *OpenFile) headerNonce() []byte {
	if f.headerObj == nil {
		return nil
	}
	return f.headerObj.Nonce
}

func (f *OpenFile) writeBackChunk(index int, cleartext []byte) error {
	// The last chunk is stored at its true cleartext length, so the
	// on-disk ciphertext total stays consistent with the file size.
	chunkStart := int64(index) * int64(f.geometry.ClearChunk)
	if remain := f.size - chunkStart; remain < int64(len(cleartext)) {
		if remain <= 0 {
			return nil
		}
		cleartext = cleartext[:remain]
	}
	ciphertext, err := f.chunks.SealChunk(f.headerNonce(), uint64(index), cleartext)
	if err != nil {
		return err
	}
	if _, err := f.host.WriteAt(ciphertext, f.geometry.ciphertextOffset(index)); err != nil {
		return newVaultError(KindIO, "writeBackChunk", f.hostPath, err)
	}
	return nil
}

// Read fills dst starting at position, clamped to the authoritative
// size; returns (0, io.EOF)-style semantics via a bool rather than
// wrapping io.EOF so callers can distinguish "no bytes, not an error".
func (f *OpenFile) Read(dst []byte, position int64) (int, bool, error) {
	if err := checkReadWriteArgs(dst, position); err != nil {
		return 0, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.cache.DrainErrors(); err != nil {
		return 0, false, err
	}
	if position >= f.size {
		return 0, true, nil
	}
	remaining := f.size - position
	if int64(len(dst)) > remaining {
		dst = dst[:remaining]
	}

	if len(dst) > 0 {
		firstIdx := f.chunkIndexFor(position)
		lastIdx := f.chunkIndexFor(position + int64(len(dst)) - 1)
		if err := f.prefetchChunks(firstIdx, lastIdx); err != nil {
			return 0, false, err
		}
	}

	total := 0
	for total < len(dst) {
		pos := position + int64(total)
		idx := f.chunkIndexFor(pos)
		offsetInChunk := int(pos % int64(f.geometry.ClearChunk))
		cleartext, err := f.loadChunk(idx)
		if err != nil {
			return total, false, err
		}
		if offsetInChunk >= len(cleartext) {
			return total, false, newVaultError(KindCorrupted, "read", f.hostPath,
				fmt.Errorf("header size %d exceeds ciphertext content", f.size))
		}
		n := copy(dst[total:], cleartext[offsetInChunk:])
		total += n
	}
	return total, false, nil
}

// Write installs src at position, zero-filling any gap if position is
// past the current size, and marks every touched chunk dirty.
func (f *OpenFile) Write(src []byte, position int64) (int, error) {
	if err := checkReadWriteArgs(src, position); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readOnly {
		return 0, ErrReadOnly
	}
	if err := f.cache.DrainErrors(); err != nil {
		return 0, err
	}

	if position > f.size {
		if err := f.zeroFillLocked(f.size, position); err != nil {
			return 0, err
		}
	}

	total := 0
	for total < len(src) {
		pos := position + int64(total)
		idx := f.chunkIndexFor(pos)
		offsetInChunk := int(pos % int64(f.geometry.ClearChunk))
		remainingInChunk := f.geometry.ClearChunk - offsetInChunk
		chunkSpan := len(src) - total
		if chunkSpan > remainingInChunk {
			chunkSpan = remainingInChunk
		}

		var cleartext []byte
		if offsetInChunk == 0 && chunkSpan == f.geometry.ClearChunk {
			cleartext = make([]byte, f.geometry.ClearChunk)
		} else {
			loaded, err := f.loadChunk(idx)
			if err != nil {
				return total, err
			}
			cleartext = append([]byte(nil), loaded...)
			// a chunk read back from disk is stored at its true length,
			// which may be shorter than the span this write covers
			if need := offsetInChunk + chunkSpan; len(cleartext) < need {
				cleartext = append(cleartext, make([]byte, need-len(cleartext))...)
			}
		}
		copy(cleartext[offsetInChunk:], src[total:total+chunkSpan])
		f.cache.Put(idx, cleartext, true)
		total += chunkSpan
	}

	if position+int64(len(src)) > f.size {
		f.size = position + int64(len(src))
	}
	f.modTime = time.Now()
	return total, nil
}

func (f *OpenFile) zeroFillLocked(from, to int64) error {
	zeros := make([]byte, f.geometry.ClearChunk)
	for pos := from; pos < to; {
		idx := f.chunkIndexFor(pos)
		offsetInChunk := int(pos % int64(f.geometry.ClearChunk))
		span := to - pos
		if span > int64(f.geometry.ClearChunk-offsetInChunk) {
			span = int64(f.geometry.ClearChunk - offsetInChunk)
		}
		var cleartext []byte
		if offsetInChunk == 0 && span == int64(f.geometry.ClearChunk) {
			cleartext = make([]byte, f.geometry.ClearChunk)
		} else {
			loaded, err := f.loadChunk(idx)
			if err != nil {
				return err
			}
			cleartext = append([]byte(nil), loaded...)
			if need := offsetInChunk + int(span); len(cleartext) < need {
				cleartext = append(cleartext, make([]byte, need-len(cleartext))...)
			}
			copy(cleartext[offsetInChunk:], zeros[:span])
		}
		f.cache.Put(idx, cleartext, true)
		pos += span
	}
	return nil
}

// Truncate sets size to s, evicting chunks beyond it and zeroing the
// tail of the last partial chunk.
func (f *OpenFile) Truncate(s int64) error {
	if s < 0 {
		return ErrNegativeOffset
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly {
		return ErrReadOnly
	}

	lastIdx := f.chunkIndexFor(s)
	for idx := lastIdx + 1; int64(idx)*int64(f.geometry.ClearChunk) < f.size; idx++ {
		f.cache.Evict(idx)
	}
	if tailOffset := int(s % int64(f.geometry.ClearChunk)); s < f.size && tailOffset != 0 {
		cleartext, err := f.loadChunk(lastIdx)
		if err != nil {
			return err
		}
		tail := append([]byte(nil), cleartext...)
		for i := tailOffset; i < len(tail); i++ {
			tail[i] = 0
		}
		f.cache.Put(lastIdx, tail, true)
	}
	f.size = s
	return f.force(false)
}

// Force writes back all dirty chunks and the header with the current
// size, then syncs the host file. The host file has a single Sync, so
// metadata does not change what is synced.
func (f *OpenFile) Force(metadata bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.force(metadata)
}

func (f *OpenFile) force(metadata bool) error {
	if err := f.cache.Flush(); err != nil {
		return err
	}
	f.headerObj.ClearTextSize = f.size
	sealed, err := f.headerObj.Seal(f.header)
	if err != nil {
		return err
	}
	if _, err := f.host.WriteAt(sealed, 0); err != nil {
		return newVaultError(KindIO, "force", f.hostPath, err)
	}
	if err := f.host.Sync(); err != nil {
		return newVaultError(KindIO, "force", f.hostPath, err)
	}
	return nil
}

// Close decrements openCount; at zero it flushes, writes the header if
// writable, and releases the underlying host handle.
func (f *OpenFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != stateOpen {
		return ErrClosed
	}
	f.openCount--
	if f.openCount > 0 {
		return nil
	}

	f.state = stateClosing
	var closeErr error
	if !f.readOnly {
		closeErr = f.force(false)
	}
	if err := f.host.Close(); err != nil && closeErr == nil {
		closeErr = newVaultError(KindIO, "close", f.hostPath, err)
	}
	f.state = stateClosed
	if f.forget != nil {
		f.forget()
	}
	return closeErr
}

// Size returns the live authoritative cleartext size.
func (f *OpenFile) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// LockRange translates a cleartext [pos, pos+length) byte range into the
// chunk-aligned ciphertext range and forwards to the host file's locker,
// if it implements one. Never passes cleartext offsets through. Two
// cleartext ranges that land in the same chunk translate to overlapping
// ciphertext ranges, so a second lock on the same handle fails Overlap
// even when the cleartext ranges themselves are disjoint.
func (f *OpenFile) LockRange(pos, length int64, exclusive bool) error {
	lock := f.translateLock(pos, length, exclusive)

	f.mu.Lock()
	for _, held := range f.heldLocks {
		if lock.start < held.end && held.start < lock.end {
			f.mu.Unlock()
			return newVaultError(KindOverlap, "lock", f.hostPath,
				fmt.Errorf("ciphertext range [%d,%d) overlaps a held lock", lock.start, lock.end))
		}
	}
	f.heldLocks = append(f.heldLocks, lock)
	f.mu.Unlock()

	locker, ok := f.host.(fileLocker)
	if !ok {
		return nil
	}
	if err := locker.Lock(lock.start, lock.end, lock.exclusive); err != nil {
		f.dropLock(lock)
		return err
	}
	return nil
}

func (f *OpenFile) UnlockRange(pos, length int64) error {
	lock := f.translateLock(pos, length, false)
	f.dropLock(lock)
	locker, ok := f.host.(fileLocker)
	if !ok {
		return nil
	}
	return locker.Unlock(lock.start, lock.end)
}

func (f *OpenFile) dropLock(lock rangeLock) {
	f.mu.Lock()
	for i, held := range f.heldLocks {
		if held.start == lock.start && held.end == lock.end {
			f.heldLocks = append(f.heldLocks[:i], f.heldLocks[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
}

func (f *OpenFile) translateLock(pos, length int64, exclusive bool) rangeLock {
	p := int64(f.geometry.ClearChunk)
	startChunk := pos / p
	endChunk := (pos + length + p - 1) / p
	return rangeLock{
		start:     f.geometry.ciphertextOffset(int(startChunk)),
		end:       f.geometry.ciphertextOffset(int(endChunk)),
		exclusive: exclusive,
	}
}
