package catalog

import "io"

// Vault is long-term storage for archived recycle-bin entries.
// Keys are flat names such as "<entry id>.json".
type Vault interface {
	// PutArchive stores an archive blob. Writing an existing key overwrites it.
	// size is the number of bytes that will be read from r.
	PutArchive(key string, r io.Reader, size int64) error

	// GetArchive retrieves an archive blob and writes it to w.
	GetArchive(key string, w io.Writer) error

	// ListArchives returns every stored key in lexical order.
	ListArchives() ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
