package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"catalog-go/internal/catalog"
)

// FileSystemVault stores archives as files:
//
//	<root>/
//	  archive/
//	    <entry id>.json       (plain)
//	    <entry id>.json.age   (encrypted)
type FileSystemVault struct {
	name       string
	root       string
	archiveDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	archiveDir := filepath.Join(root, "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &FileSystemVault{
		name:       name,
		root:       root,
		archiveDir: archiveDir,
	}, nil
}

// PutArchive writes the archive atomically. An existing key is replaced.
func (v *FileSystemVault) PutArchive(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return v.writeFile(filepath.Join(v.archiveDir, key), r, size)
}

func (v *FileSystemVault) GetArchive(key string, w io.Writer) error {
	if err := validateKey(key); err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(v.archiveDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", key)
		}
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	return nil
}

// ListArchives skips temp files left behind by interrupted writes.
func (v *FileSystemVault) ListArchives() ([]string, error) {
	entries, err := os.ReadDir(v.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.archiveDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath through a temp file in the same directory
// and a rename.
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// validateKey rejects keys that would escape a flat namespace.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid archive key: %q", key)
	}
	return nil
}

var _ catalog.Vault = (*FileSystemVault)(nil)
