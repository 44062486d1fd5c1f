package model

import "time"

// DeleteStrategy selects what happens to the descendants of a category that
// is moved to the recycle bin.
type DeleteStrategy string

const (
	// StrategyCascade removes every descendant category and product along
	// with the category and snapshots them into the entry.
	StrategyCascade DeleteStrategy = "cascade"
	// StrategyMoveUp re-parents every descendant one level up and records
	// the rewrites so they can be reversed on restore.
	StrategyMoveUp DeleteStrategy = "move-up"
)

// RecycleBinEntry holds everything needed to undo a single soft delete.
// Exactly one of Category and Product is set, matching ItemType.
type RecycleBinEntry struct {
	ID           string     `json:"id"`
	ItemID       string     `json:"itemId"`
	ItemType     EntityType `json:"itemType"`
	ItemName     string     `json:"itemName"`
	ItemImage    string     `json:"itemImage,omitempty"`
	OriginalPath string     `json:"originalPath"`
	DeletedAt    time.Time  `json:"deletedAt"`
	DeletedBy    string     `json:"deletedBy,omitempty"`

	Category *CategoryRecord `json:"category,omitempty"`
	Product  *ProductRecord  `json:"product,omitempty"`

	// StoredPermissions are the permission rows of the deleted item itself.
	StoredPermissions []Permission `json:"storedPermissions"`
}

// CategoryRecord is the category-specific part of a recycle-bin entry.
type CategoryRecord struct {
	CategoryPath                   string         `json:"categoryPath"`
	PermissionsInheritedToChildren bool           `json:"permissionsInheritedToChildren"`
	Strategy                       DeleteStrategy `json:"strategy"`
	ChildrenCount                  int            `json:"childrenCount"`

	// Descendants is only populated by the cascade strategy.
	Descendants []Descendant `json:"descendants,omitempty"`

	// MovedChildren is only populated by the move-up strategy, in the order
	// the rewrites were applied.
	MovedChildren      []MovedChild `json:"movedChildren,omitempty"`
	MovedChildrenCount int          `json:"movedChildrenCount"`

	CreatedAt time.Time `json:"createdAt"`
}

// ProductRecord is the product-specific part of a recycle-bin entry.
type ProductRecord struct {
	Description         string        `json:"productDescription,omitempty"`
	Images              []string      `json:"productImages"`
	CustomFields        []CustomField `json:"customFields"`
	UploadFolders       []string      `json:"uploadFolders"`
	AllProductPaths     []string      `json:"allProductPaths"`
	SpecificPathDeleted string        `json:"specificPathDeleted,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// Descendant is a snapshot of a category or product removed by a cascade
// delete. Type says which of the two pointers is set.
type Descendant struct {
	Type     EntityType `json:"type"`
	Category *Category  `json:"category,omitempty"`
	Product  *Product   `json:"product,omitempty"`
}

// CategoryDescendant wraps a category snapshot.
func CategoryDescendant(c Category) Descendant {
	return Descendant{Type: EntityCategory, Category: &c}
}

// ProductDescendant wraps a product snapshot.
func ProductDescendant(p Product) Descendant {
	return Descendant{Type: EntityProduct, Product: &p}
}

// MovedChild records one path rewrite done by a move-up delete.
// Categories use PreviousPath/NewPath, products use PreviousPaths/NewPaths.
type MovedChild struct {
	ItemID   string     `json:"itemId"`
	ItemType EntityType `json:"itemType"`

	PreviousPath string `json:"previousPath,omitempty"`
	NewPath      string `json:"newPath,omitempty"`

	PreviousPaths []string `json:"previousPaths,omitempty"`
	NewPaths      []string `json:"newPaths,omitempty"`
}

// RecycleBinStats summarizes the recycle bin contents.
type RecycleBinStats struct {
	TotalItems      int                `json:"totalItems"`
	ByType          map[EntityType]int `json:"byType"`
	OldestDeletedAt *time.Time         `json:"oldestDeletedAt,omitempty"`
}

// ID returns the id of the wrapped snapshot.
func (d Descendant) ID() string {
	switch {
	case d.Category != nil:
		return d.Category.ID
	case d.Product != nil:
		return d.Product.ID
	default:
		return ""
	}
}
