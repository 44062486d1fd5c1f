package vault

import (
	"fmt"

	"catalog-go/internal/catalog"
	"catalog-go/internal/config"
)

// NewVaultFromConfig creates the archive vault for the config type.
// Type "none" (or empty) returns a nil vault: purged entries are not archived.
func NewVaultFromConfig(cfg config.ArchiveConfig) (catalog.Vault, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
