// Package seen persists the set of post ids that were already notified.
package seen

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLimit bounds how many ids survive a save. Oldest entries are dropped
// first, which is safe because only recent posts re-enter the poll window.
const DefaultLimit = 2000

// Store holds notified post ids in memory and flushes them to a flat JSON
// file. It is not safe for concurrent use; the relay loop is its only caller.
type Store struct {
	path  string
	limit int

	ids   map[string]struct{}
	order []string // insertion order, used when capping
}

// Open loads the seen set at path. A missing file starts an empty set with a
// nil error; an unreadable or undecodable file also starts empty but returns
// a diagnostic error so the caller can log it. The store is usable either
// way.
func Open(path string, limit int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("seen: path is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s := &Store{
		path:  path,
		limit: limit,
		ids:   make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read seen file: %w", err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return s, fmt.Errorf("decode seen file: %w", err)
	}

	for _, id := range list {
		s.Add(id)
	}
	return s, nil
}

// Contains reports whether the id was already notified.
func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records an id. Adding an existing id is a no-op.
func (s *Store) Add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

// Len returns the number of recorded ids.
func (s *Store) Len() int {
	return len(s.ids)
}

// Save writes the set to disk, keeping only the most recent limit ids. The
// file is written to a temp name in the same directory and renamed over the
// target so readers never observe a partial write.
func (s *Store) Save() error {
	if len(s.order) > s.limit {
		dropped := s.order[:len(s.order)-s.limit]
		for _, id := range dropped {
			delete(s.ids, id)
		}
		s.order = append([]string(nil), s.order[len(dropped):]...)
	}

	data, err := json.MarshalIndent(s.order, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seen file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create seen dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp seen file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write seen file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close seen file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace seen file: %w", err)
	}
	return nil
}
