package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"catalog-go/internal/model"
)

const (
	archiveSuffix          = ".json"
	encryptedArchiveSuffix = ".json.age"
)

// ArchiveKey is the vault key of an archived entry.
func ArchiveKey(entryID string, encrypted bool) string {
	if encrypted {
		return entryID + encryptedArchiveSuffix
	}
	return entryID + archiveSuffix
}

// archiveEntry writes entry to the archive vault, encrypted when an
// encryptor is configured.
func (s *CatalogService) archiveEntry(entry *model.RecycleBinEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding entry %s: %w", entry.ID, err)
	}

	encrypted := s.encryptor != nil
	if encrypted {
		if !s.encryptor.IsConfigured() {
			return fmt.Errorf("archive encryption is not set up")
		}
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return fmt.Errorf("encrypting entry %s: %w", entry.ID, err)
		}
		data = buf.Bytes()
	}

	key := ArchiveKey(entry.ID, encrypted)
	if err := s.archive.PutArchive(key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("archiving entry %s: %w", entry.ID, err)
	}

	s.logger.Debug("entry archived", "entry", entry.ID, "key", key, "bytes", len(data))
	return nil
}

// ListArchivedEntries returns the ids of archived entries.
func (s *CatalogService) ListArchivedEntries() ([]string, error) {
	if s.archive == nil {
		return nil, badRequest("no archive configured")
	}
	keys, err := s.archive.ListArchives()
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		switch {
		case strings.HasSuffix(k, encryptedArchiveSuffix):
			ids = append(ids, strings.TrimSuffix(k, encryptedArchiveSuffix))
		case strings.HasSuffix(k, archiveSuffix):
			ids = append(ids, strings.TrimSuffix(k, archiveSuffix))
		}
	}
	return ids, nil
}

// GetArchivedEntry reads an archived entry back. decrypt may be nil for
// plain archives.
func (s *CatalogService) GetArchivedEntry(entryID string, decrypt DecryptionContext) (*model.RecycleBinEntry, error) {
	if s.archive == nil {
		return nil, badRequest("no archive configured")
	}
	keys, err := s.archive.ListArchives()
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	key := ""
	for _, k := range keys {
		if k == ArchiveKey(entryID, true) || k == ArchiveKey(entryID, false) {
			key = k
			break
		}
	}
	if key == "" {
		return nil, notFound("archived entry %s", entryID)
	}

	var buf bytes.Buffer
	if err := s.archive.GetArchive(key, &buf); err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", key, err)
	}

	data := buf.Bytes()
	if strings.HasSuffix(key, encryptedArchiveSuffix) {
		if decrypt == nil {
			return nil, badRequest("archived entry %s is encrypted", entryID)
		}
		var plain bytes.Buffer
		if err := decrypt.Decrypt(bytes.NewReader(data), &plain); err != nil {
			return nil, fmt.Errorf("decrypting archive %s: %w", key, err)
		}
		data = plain.Bytes()
	}

	var entry model.RecycleBinEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding archive %s: %w", key, err)
	}
	return &entry, nil
}
