package cryptofs

import (
	"runtime"
	"sync"
)

// PrefetchConfig bounds the read-ahead decryption an OpenFile performs
// when one read spans several not-yet-cached chunks. Workers <= 1 keeps
// decryption on the calling goroutine; spans shorter than Threshold are
// never fanned out. There is no encrypt-side counterpart: writes go
// through the chunk cache one chunk at a time under the file lock.
type PrefetchConfig struct {
	Workers   int
	Threshold int
}

func defaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{Workers: runtime.NumCPU(), Threshold: 4}
}

// chunkFetch is one pending chunk: ciphertext read off the host under
// the OpenFile lock, cleartext filled in by decryptStriped.
type chunkFetch struct {
	index      uint64
	ciphertext []byte
	cleartext  []byte
}

// decryptStriped decrypts jobs in place, striding them across at most
// cfg.Workers goroutines: worker w owns jobs w, w+n, w+2n, ..., so no
// two goroutines ever touch the same element and no queue is needed.
// The first failure wins; each worker stops at its own first error.
func decryptStriped(cryptor ChunkCryptor, headerNonce []byte, cfg PrefetchConfig, jobs []chunkFetch) error {
	workers := cfg.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers <= 1 || len(jobs) < cfg.Threshold {
		for i := range jobs {
			cleartext, err := cryptor.OpenChunk(headerNonce, jobs[i].index, jobs[i].ciphertext)
			if err != nil {
				return err
			}
			jobs[i].cleartext = cleartext
		}
		return nil
	}

	var (
		wg      sync.WaitGroup
		once    sync.Once
		failure error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(stripe int) {
			defer wg.Done()
			for i := stripe; i < len(jobs); i += workers {
				cleartext, err := cryptor.OpenChunk(headerNonce, jobs[i].index, jobs[i].ciphertext)
				if err != nil {
					once.Do(func() { failure = err })
					return
				}
				jobs[i].cleartext = cleartext
			}
		}(w)
	}
	wg.Wait()
	return failure
}
