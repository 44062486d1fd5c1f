package model

import (
	"fmt"
	"time"
)

// EntityType identifies which kind of catalog record a permission or
// recycle-bin entry refers to.
type EntityType string

const (
	EntityCategory EntityType = "category"
	EntityProduct  EntityType = "product"
)

// ParseEntityType converts a raw string (e.g. a CLI argument) to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityCategory, EntityProduct:
		return EntityType(s), nil
	default:
		return "", fmt.Errorf("unknown entity type: %q", s)
	}
}

// Category is a node of the catalog tree.
// Path is the materialized path, e.g. "/electronics/phones". Both Name and
// Path are unique across live categories.
type Category struct {
	ID                             string    `db:"id" json:"id"`
	Name                           string    `db:"name" json:"name"`
	Path                           string    `db:"path" json:"path"`
	Image                          string    `db:"image" json:"image,omitempty"`
	PermissionsInheritedToChildren bool      `db:"permissions_inherited" json:"permissionsInheritedToChildren"`
	CreatedAt                      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt                      time.Time `db:"updated_at" json:"updatedAt"`
}

// CustomField is a free-form name/value attribute attached to a product.
type CustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is a catalog item. A product can live in several categories at
// once; each entry of Paths is the path of one category it belongs to.
// Paths is stored in order and is not deduplicated.
type Product struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Images        []string      `json:"images"`
	Paths         []string      `json:"path"`
	CustomFields  []CustomField `json:"customFields"`
	UploadFolders []string      `json:"uploadFolders"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Permission grants a principal access to a single category or product.
type Permission struct {
	EntityType         EntityType `db:"entity_type" json:"entityType"`
	EntityID           string     `db:"entity_id" json:"entityId"`
	AllowedPrincipalID string     `db:"allowed_principal_id" json:"allowedPrincipalId"`
}
