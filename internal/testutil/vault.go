package testutil

import (
	"catalog-go/internal/vault"
)

// NewTestVault creates a new in-memory archive vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-archive")
}
