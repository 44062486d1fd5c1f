package catalog

import (
	"fmt"
	"strings"

	"catalog-go/internal/model"
)

// GetStats summarizes the recycle bin.
func (s *CatalogService) GetStats() (*model.RecycleBinStats, error) {
	stats, err := s.database.RecycleBinStats()
	if err != nil {
		return nil, fmt.Errorf("computing recycle bin stats: %w", err)
	}
	return stats, nil
}

// ListFilter narrows ListEntries. Zero values match everything.
type ListFilter struct {
	ItemType model.EntityType

	// PathPrefix keeps entries whose original path is the prefix itself or
	// nested under it. Trailing slashes are ignored, so "/" matches all.
	PathPrefix string
}

// ListEntries returns recycle-bin entries, newest first.
func (s *CatalogService) ListEntries(filter ListFilter) ([]*model.RecycleBinEntry, error) {
	entries, err := s.database.ListRecycleBinEntries()
	if err != nil {
		return nil, fmt.Errorf("listing recycle bin entries: %w", err)
	}
	prefix := strings.TrimRight(filter.PathPrefix, "/")
	if filter.ItemType == "" && prefix == "" {
		return entries, nil
	}

	pattern := DescendantPattern(prefix)
	out := make([]*model.RecycleBinEntry, 0, len(entries))
	for _, e := range entries {
		if filter.ItemType != "" && e.ItemType != filter.ItemType {
			continue
		}
		if prefix != "" && !pattern.MatchString(e.OriginalPath) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
