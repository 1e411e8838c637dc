package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

// FileStore persists each (id, key) record as its own file under a root
// directory, standing in for the real FDS flash layer the original
// firmware uses (out of scope per spec.md §1). A record full/quota error
// from the filesystem triggers one GC-and-retry, matching spec.md §7's
// "flash full condition triggers one automatic GC and retry".
type FileStore struct {
	mu   sync.Mutex
	root string
}

// NewFileStore creates (if needed) root and returns a Store backed by it.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) path(id, key uint16) string {
	return filepath.Join(f.root, fmt.Sprintf("%04x_%04x.bin", id, key))
}

func (f *FileStore) Read(id, key uint16, buf []byte) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(id, key))
	if err != nil {
		return 0, false
	}
	n := copy(buf, data)
	return n, true
}

func (f *FileStore) Write(id, key uint16, buf []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	write := func() error {
		return os.WriteFile(f.path(id, key), buf, 0o644)
	}
	if err := write(); err == nil {
		return true
	}
	// One automatic GC and retry on a write failure, per spec.md §7.
	f.gcLocked()
	retry := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 0)
	err := backoff.Retry(write, retry)
	return err == nil
}

func (f *FileStore) Delete(id, key uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(id, key)); err != nil {
		return 0
	}
	return 1
}

func (f *FileStore) Wipe() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return false
	}
	for _, e := range entries {
		os.Remove(filepath.Join(f.root, e.Name()))
	}
	return true
}

func (f *FileStore) GC() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gcLocked()
}

// gcLocked removes zero-length (aborted-write) records. The real flash GC
// reclaims erased-but-unreleased pages; a file store's analog is cleaning
// up files left behind by an interrupted write.
func (f *FileStore) gcLocked() {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		info, err := e.Info()
		if err == nil && info.Size() == 0 {
			os.Remove(filepath.Join(f.root, e.Name()))
		}
	}
}
