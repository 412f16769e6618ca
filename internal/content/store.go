// SPDX-License-Identifier: MIT

package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/typhoonhub/playcore/internal/log"
)

// FileStore is a JSON-file backed catalog. It reloads on file change and
// writes atomically, so readers never observe a torn catalog.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	items  map[string]PlayableContent
	order  []string
	logger zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore loads the catalog at path. A missing file yields an empty
// catalog rather than an error so a fresh deployment starts clean.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		items:  make(map[string]PlayableContent),
		logger: log.WithComponent("catalog"),
	}
	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		s.logger.Info().Str(log.FieldPath, path).Msg("no catalog file yet, starting empty")
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var list []PlayableContent
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", s.path, err)
	}

	items := make(map[string]PlayableContent, len(list))
	order := make([]string, 0, len(list))
	for _, c := range list {
		if c.ID == "" {
			return fmt.Errorf("catalog: entry with empty id in %s", s.path)
		}
		if _, dup := items[c.ID]; dup {
			return fmt.Errorf("catalog: duplicate id %q in %s", c.ID, s.path)
		}
		items[c.ID] = c
		order = append(order, c.ID)
	}

	s.mu.Lock()
	s.items = items
	s.order = order
	s.mu.Unlock()

	s.logger.Info().Int("items", len(list)).Str(log.FieldPath, s.path).Msg("catalog loaded")
	return nil
}

// Get returns the content with the given id.
func (s *FileStore) Get(id string) (PlayableContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	return c, ok
}

// List returns all catalog entries in file order.
func (s *FileStore) List() []PlayableContent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PlayableContent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Put upserts an entry and persists the catalog atomically.
func (s *FileStore) Put(c PlayableContent) error {
	if c.ID == "" {
		return fmt.Errorf("catalog: content id must not be empty")
	}

	s.mu.Lock()
	if _, exists := s.items[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.items[c.ID] = c
	list := make([]PlayableContent, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.items[id])
	}
	s.mu.Unlock()

	return s.save(list)
}

func (s *FileStore) save(list []PlayableContent) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("catalog: mkdir: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", s.path, err)
	}
	return nil
}

// Watch starts reloading the catalog whenever the file changes on disk.
// It is a no-op if a watch is already running.
func (s *FileStore) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	// Watch the directory: editors and atomic writers replace the file,
	// which drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("catalog: watch %s: %w", filepath.Dir(s.path), err)
	}

	s.watcher = w
	s.done = make(chan struct{})
	go s.watchLoop(w, s.done)
	return nil
}

func (s *FileStore) watchLoop(w *fsnotify.Watcher, done chan struct{}) {
	target := filepath.Clean(s.path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.load(); err != nil {
				s.logger.Warn().Err(err).Msg("catalog reload failed, keeping previous catalog")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("catalog watcher error")
		case <-done:
			return
		}
	}
}

// Close stops the watcher, if running.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
