// Package storage spools submitted payloads to disk until their upload settles.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

// ErrFileNotFound is returned for ids the spool does not hold.
var ErrFileNotFound = errors.New("file not found")

// Store is the payload spool used by intake sessions.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	Open(id string) (io.ReadCloser, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
}

// Source adapts a spooled payload to models.ContentSource. The payload is
// reopened on every call.
func Source(s Store, id string) models.ContentSource {
	return models.ContentFunc(func() (io.ReadCloser, error) { return s.Open(id) })
}

// LocalStore keeps payloads as files named by id under one directory.
// Metadata lives in memory only, so a restart forgets earlier payloads.
type LocalStore struct {
	dir string

	mu    sync.RWMutex
	files map[string]*models.FileInfo
}

// NewLocalStore creates dir if needed and returns an empty spool over it.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	return &LocalStore{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
	}, nil
}

// Dir returns the spool directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

// Save copies r into a new spool file. A partial file is removed on error.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := s.path(id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing spool file: %w", err)
	}

	info := &models.FileInfo{ID: id, Name: name, Size: size, UploadedAt: time.Now()}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()
	return info, nil
}

func (s *LocalStore) lookup(id string) (*models.FileInfo, error) {
	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return info, nil
}

// Get returns a copy of the metadata of id.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	cp := *info
	return &cp, nil
}

// Open returns a reader over the payload of id.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	s.mu.RLock()
	_, err := s.lookup(id)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("opening spooled payload: %w", err)
	}
	return f, nil
}

// List returns spooled payloads newest first. A non-positive limit returns all.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		list = append(list, &cp)
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b *models.FileInfo) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Usage reports the number of spooled payloads and their total size.
func (s *LocalStore) Usage() (files int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, info := range s.files {
		bytes += info.Size
	}
	return len(s.files), bytes
}

// Delete removes the payload of id. A file already gone from disk is not an error.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting spooled payload: %w", err)
	}
	delete(s.files, id)
	return nil
}
