package catalog

import "fmt"

// PermanentlyDelete drops a recycle-bin entry for good. Descendants of a
// cascade delete live only inside the entry, so deleteChildren changes the
// message but not what is removed. With an archive configured the entry is
// archived first and a failed archive keeps the entry.
func (s *CatalogService) PermanentlyDelete(id string, deleteChildren bool) (string, error) {
	entry, err := s.database.FindRecycleBinEntry(id)
	if err != nil {
		return "", fmt.Errorf("finding recycle bin entry: %w", err)
	}
	if entry == nil {
		return "", notFound("recycle bin entry %s", id)
	}

	if s.archive != nil {
		if err := s.archiveEntry(entry); err != nil {
			return "", err
		}
	}
	if err := s.database.DeleteRecycleBinEntry(entry.ID); err != nil {
		return "", fmt.Errorf("deleting recycle bin entry: %w", err)
	}

	s.logger.Info("recycle bin entry purged", "entry", entry.ID, "item", entry.ItemID, "type", entry.ItemType)

	msg := fmt.Sprintf("%s %q permanently deleted", entry.ItemType, entry.ItemName)
	if deleteChildren && entry.Category != nil && len(entry.Category.Descendants) > 0 {
		msg += fmt.Sprintf(" along with %d descendants", len(entry.Category.Descendants))
	}
	return msg, nil
}

// EmptyRecycleBin removes every entry and returns how many were removed.
// With an archive configured only the entries that were archived are
// removed, so an entry added meanwhile stays in the bin.
func (s *CatalogService) EmptyRecycleBin() (int64, error) {
	if s.archive == nil {
		n, err := s.database.DeleteAllRecycleBinEntries()
		if err != nil {
			return 0, fmt.Errorf("emptying recycle bin: %w", err)
		}
		s.logger.Info("recycle bin emptied", "deleted", n)
		return n, nil
	}

	entries, err := s.database.ListRecycleBinEntries()
	if err != nil {
		return 0, fmt.Errorf("listing recycle bin entries: %w", err)
	}
	var n int64
	for _, entry := range entries {
		if err := s.archiveEntry(entry); err != nil {
			return n, err
		}
		if err := s.database.DeleteRecycleBinEntry(entry.ID); err != nil {
			return n, fmt.Errorf("deleting recycle bin entry %s: %w", entry.ID, err)
		}
		n++
	}

	s.logger.Info("recycle bin emptied", "archived", n)
	return n, nil
}
