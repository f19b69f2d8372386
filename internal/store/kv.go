package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/splitkit/internal/config"
)

// KV is a durable string key-value scope, the server-side counterpart of a
// browser's local storage.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
	Keys() ([]string, error)
	Close() error
}

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory:
		return NewMemoryKV(), nil
	case DriverFile, "":
		lockCfg, err := lockConfigFrom(cfg)
		if err != nil {
			return nil, err
		}
		return OpenFileKV(cfg.Path, lockCfg)
	case DriverSQLite:
		return OpenSQLiteKV(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func lockConfigFrom(cfg config.StoreConfig) (*FileLockConfig, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return nil, fmt.Errorf("parse store lock retry: %w", err)
	}
	maxRetry := cfg.LockMaxRetry
	if maxRetry <= 0 {
		maxRetry = config.DefaultStoreLockMaxRetry
	}
	if lockRetry <= 0 {
		lockRetry = 100 * time.Millisecond
	}
	return &FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: maxRetry,
	}, nil
}

// Namespaced confines a KV to keys prefixed with scope. Clear and Keys only
// see the scope's own keys; Close is a no-op so scopes can share a parent.
type Namespaced struct {
	parent KV
	prefix string
}

func NewNamespaced(parent KV, scope string) *Namespaced {
	return &Namespaced{parent: parent, prefix: scope + ":"}
}

func (n *Namespaced) Get(key string) (string, bool, error) {
	return n.parent.Get(n.prefix + key)
}

func (n *Namespaced) Set(key, value string) error {
	return n.parent.Set(n.prefix+key, value)
}

func (n *Namespaced) Delete(key string) error {
	return n.parent.Delete(n.prefix + key)
}

func (n *Namespaced) Clear() error {
	keys, err := n.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := n.parent.Delete(n.prefix + k); err != nil {
			return err
		}
	}
	return nil
}

func (n *Namespaced) Keys() ([]string, error) {
	all, err := n.parent.Keys()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, n.prefix) {
			keys = append(keys, strings.TrimPrefix(k, n.prefix))
		}
	}
	return keys, nil
}

func (n *Namespaced) Close() error {
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
