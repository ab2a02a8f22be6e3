package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const storeFileName = "store.yaml"

// ErrNotFound indicates the key has no stored value.
var ErrNotFound = errors.New("key not found")

// KV is a string-keyed string store.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// FileStore is a KV persisted as a flat YAML mapping.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	logger *slog.Logger
}

// StorePath returns the store file location inside dir.
func StorePath(dir string) string {
	return filepath.Join(dir, storeFileName)
}

// OpenFileStore loads the store at path. A missing file yields an empty store.
// A corrupt file is reported but the returned store is still usable and will
// overwrite the file on the next Set.
func OpenFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store := &FileStore{
		path:   path,
		values: map[string]string{},
		logger: logger,
	}
	values, err := readValues(path)
	if err != nil {
		return store, err
	}
	store.values = values
	return store, nil
}

// Path returns the backing file.
func (store *FileStore) Path() string {
	return store.path
}

// Get returns the value for key or ErrNotFound.
func (store *FileStore) Get(key string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	value, ok := store.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value and rewrites the file.
func (store *FileStore) Set(key, value string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	previous, existed := store.values[key]
	store.values[key] = value
	if err := writeValues(store.path, store.values); err != nil {
		if existed {
			store.values[key] = previous
		} else {
			delete(store.values, key)
		}
		return err
	}
	return nil
}

// Reload rereads the file, keeping the in-memory values if it is unreadable.
func (store *FileStore) Reload() error {
	values, err := readValues(store.path)
	if err != nil {
		return err
	}
	store.mu.Lock()
	store.values = values
	store.mu.Unlock()
	return nil
}

// Watch reloads the store whenever the file changes on disk and calls
// onChange afterwards. It blocks until ctx is done.
func (store *FileStore) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(store.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create store watcher: %w", err)
	}
	defer watcher.Close()

	// Editors and our own writes replace the file, so watch the directory.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch store directory: %w", err)
	}

	target := filepath.Base(store.path)
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(100 * time.Millisecond)
		case <-debounce.C:
			if err := store.Reload(); err != nil {
				store.logger.Warn("reload store failed", "path", store.path, "error", err)
				continue
			}
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			store.logger.Warn("store watcher error", "error", err)
		}
	}
}

func readValues(path string) (map[string]string, error) {
	values := map[string]string{}
	rawData, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return values, fmt.Errorf("read store file: %w", err)
	}
	if err := yaml.Unmarshal(rawData, &values); err != nil {
		return map[string]string{}, fmt.Errorf("parse store yaml: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

func writeValues(path string, values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	serialized, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal store yaml: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+storeFileName+"-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(serialized); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
