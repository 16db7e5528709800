package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/hyprpal/playpal/internal/util"
)

const storeDebounceWindow = 250 * time.Millisecond

// FileStore persists settings in a YAML document. External edits are picked
// up by Watch and published as changes against the last seen snapshot.
type FileStore struct {
	path   string
	logger *util.Logger

	mu       sync.Mutex
	snapshot map[string]any
	pub      *publisher
}

// OpenFileStore reads the settings document at path. A missing file is
// treated as empty and created on the first Set.
func OpenFileStore(path string, logger *util.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("settings store path cannot be empty")
	}
	s := &FileStore{
		path:   filepath.Clean(path),
		logger: logger,
		pub:    newPublisher(64),
	}
	s.pub.dropped = func(changes Changes) {
		s.logger.Warnf("settings change notification dropped (%d keys)", len(changes))
	}
	values, err := s.read()
	if err != nil {
		return nil, err
	}
	s.snapshot = values
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the document from disk so callers always see persisted values.
func (s *FileStore) Get(ctx context.Context, keys []string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values, err := s.read()
	if err != nil {
		return nil, err
	}
	return pick(values, keys), nil
}

// Set merges values into the document and writes it atomically.
func (s *FileStore) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	current, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged := make(map[string]any, len(current)+len(values))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	if err := s.write(merged); err != nil {
		s.mu.Unlock()
		return err
	}
	changes := diffValues(s.snapshot, merged, true)
	s.snapshot = merged
	s.mu.Unlock()
	s.pub.publish(changes)
	return nil
}

func (s *FileStore) Changes() <-chan Changes {
	return s.pub.ch
}

// Reload re-reads the document and publishes any difference from the last
// snapshot.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	values, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changes := diffValues(s.snapshot, values, true)
	s.snapshot = values
	s.mu.Unlock()
	if len(changes) > 0 {
		s.logger.Debugf("settings file changed (%d keys)", len(changes))
	}
	s.pub.publish(changes)
	return nil
}

// Watch follows the settings file until ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	defer watcher.Close()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch settings dir: %w", err)
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(storeDebounceWindow)
			timerCh = timer.C
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := s.Reload(); err != nil {
				s.logger.Warnf("settings reload failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warnf("settings watcher error: %v", err)
		}
	}
}

func (s *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

func (s *FileStore) write(values map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
