package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"guildkeeper/pkg/logger"
)

// FileStore is a JSON-file key-value store. Writes go through a temp file and rename.
type FileStore struct {
	log      *logger.Logger
	filePath string
	data     map[string]interface{}
	mu       sync.RWMutex

	autoSave      bool
	saveInterval  time.Duration
	saveTicker    *time.Ticker
	stopSave      chan struct{}
	closeOnce     sync.Once
	pendingWrites bool
}

// FileStoreConfig configures the file store.
type FileStoreConfig struct {
	FilePath     string
	AutoSave     bool
	SaveInterval time.Duration // default 5s
}

// NewFileStore creates a file-backed store, loading existing data if present.
func NewFileStore(log *logger.Logger, cfg *FileStoreConfig) (*FileStore, error) {
	if cfg.SaveInterval == 0 {
		cfg.SaveInterval = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &FileStore{
		log:          log,
		filePath:     cfg.FilePath,
		data:         make(map[string]interface{}),
		autoSave:     cfg.AutoSave,
		saveInterval: cfg.SaveInterval,
		stopSave:     make(chan struct{}),
	}

	if err := s.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	if s.autoSave {
		s.startAutoSave()
	}

	return s, nil
}

// Get retrieves a value from the store.
func (s *FileStore) Get(ctx context.Context, key string) (interface{}, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	return value, exists, nil
}

// Set stores a value.
func (s *FileStore) Set(ctx context.Context, key string, value interface{}) error {
	s.mu.Lock()
	s.data[key] = value
	s.pendingWrites = true
	s.mu.Unlock()

	return s.saveIfManual()
}

// Delete removes a value.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.pendingWrites = true
	s.mu.Unlock()

	return s.saveIfManual()
}

// Keys returns the sorted keys under prefix.
func (s *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// GetAll returns a copy of the data under prefix.
func (s *FileStore) GetAll(ctx context.Context, prefix string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{})
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

// UpdateFunc applies updateFn under the store's write lock.
func (s *FileStore) UpdateFunc(ctx context.Context, key string, updateFn func(current interface{}) (interface{}, error)) error {
	s.mu.Lock()
	next, err := updateFn(s.data[key])
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if next == nil {
		delete(s.data, key)
	} else {
		s.data[key] = next
	}
	s.pendingWrites = true
	s.mu.Unlock()

	return s.saveIfManual()
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("unmarshaling state: %w", err)
	}
	if s.data == nil {
		s.data = make(map[string]interface{})
	}

	s.log.Info("Loaded state", zap.String("file", s.filePath), zap.Int("keys", len(s.data)))
	return nil
}

// Save persists state to disk.
func (s *FileStore) Save() error {
	s.mu.RLock()
	if !s.pendingWrites {
		s.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	keyCount := len(s.data)
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("renaming temp state file: %w", err)
	}

	s.mu.Lock()
	s.pendingWrites = false
	s.mu.Unlock()

	s.log.Debug("Saved state", zap.String("file", s.filePath), zap.Int("keys", keyCount))
	return nil
}

func (s *FileStore) saveIfManual() error {
	if s.autoSave {
		return nil
	}
	return s.Save()
}

func (s *FileStore) startAutoSave() {
	s.saveTicker = time.NewTicker(s.saveInterval)

	go func() {
		for {
			select {
			case <-s.saveTicker.C:
				if err := s.Save(); err != nil {
					s.log.Error("Auto-save failed", zap.Error(err))
				}
			case <-s.stopSave:
				return
			}
		}
	}()

	s.log.Debug("Started state auto-save", zap.Duration("interval", s.saveInterval))
}

// Close stops auto-save and performs a final save.
func (s *FileStore) Close() error {
	s.closeOnce.Do(func() {
		if s.saveTicker != nil {
			s.saveTicker.Stop()
		}
		close(s.stopSave)
	})
	return s.Save()
}
