package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

type fileDocument struct {
	Entries map[string]string `json:"entries"`
}

// FileKV keeps the whole scope in one JSON document. Every mutation rewrites
// the file atomically; the lock file keeps other processes out for the
// lifetime of the store.
type FileKV struct {
	path string
	lock *FileLock
	mu   sync.RWMutex
	doc  fileDocument
}

func OpenFileKV(path string, lockCfg *FileLockConfig) (*FileKV, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	lock, err := NewFileLock(path+".lock", lockCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}

	kv := &FileKV{
		path: path,
		lock: lock,
		doc:  fileDocument{Entries: make(map[string]string)},
	}
	if err := kv.load(); err != nil {
		lock.Unlock()
		return nil, err
	}
	return kv, nil
}

func (f *FileKV) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &f.doc); err != nil {
		slog.Warn("Failed to parse store file, starting fresh", "path", f.path, "error", err)
		f.doc = fileDocument{Entries: make(map[string]string)}
		return nil
	}
	if f.doc.Entries == nil {
		f.doc.Entries = make(map[string]string)
	}
	return nil
}

// save is called with f.mu held.
func (f *FileKV) save() error {
	data, err := json.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(f.path, bytes.NewReader(data))
}

func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.doc.Entries[key]
	return v, ok, nil
}

func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.doc.Entries[key]
	f.doc.Entries[key] = value
	if err := f.save(); err != nil {
		if had {
			f.doc.Entries[key] = prev
		} else {
			delete(f.doc.Entries, key)
		}
		return err
	}
	return nil
}

func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.doc.Entries[key]
	if !had {
		return nil
	}
	delete(f.doc.Entries, key)
	if err := f.save(); err != nil {
		f.doc.Entries[key] = prev
		return err
	}
	return nil
}

func (f *FileKV) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.doc.Entries
	f.doc.Entries = make(map[string]string)
	if err := f.save(); err != nil {
		f.doc.Entries = prev
		return err
	}
	return nil
}

func (f *FileKV) Keys() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.doc.Entries), nil
}

func (f *FileKV) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock != nil {
		f.lock.Unlock()
		f.lock = nil
	}
	return nil
}
