package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"catalog-go/internal/catalog"
)

// MemoryVault keeps archives in memory. Useful for tests and for a
// throwaway "memory" archive. Safe for concurrent use.
type MemoryVault struct {
	name     string
	archives map[string][]byte
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		archives: make(map[string][]byte),
	}
}

func (m *MemoryVault) PutArchive(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[key] = data
	return nil
}

func (m *MemoryVault) GetArchive(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.archives[key]
	if !ok {
		return fmt.Errorf("archive not found: %s", key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

func (m *MemoryVault) ListArchives() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.archives))
	for k := range m.archives {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ catalog.Vault = (*MemoryVault)(nil)
