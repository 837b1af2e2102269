// mock_storage.go - In-memory spool for testing
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/storage"
)

// MockStorage implements storage.Store in memory.
type MockStorage struct {
	// SaveErr, when set, is returned by every Save.
	SaveErr error

	mu       sync.RWMutex
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	deleted  []string
	nextID   int
}

// NewMockStorage creates an empty mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.AddFile("", name, data), nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	cp := *file
	return &cp, nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for _, file := range m.files {
		cp := *file
		files = append(files, &cp)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}

	delete(m.files, id)
	delete(m.fileData, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// Usage reports the number of stored files and their total size.
func (m *MockStorage) Usage() (int, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, file := range m.files {
		total += file.Size
	}
	return len(m.files), total
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddFile stores data under id, or under a generated id when id is empty.
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		m.nextID++
		id = fmt.Sprintf("test-id-%d", m.nextID)
	}
	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}
	m.files[id] = file
	m.fileData[id] = data
	cp := *file
	return &cp
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Deleted returns the ids removed through Delete, in call order.
func (m *MockStorage) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}
