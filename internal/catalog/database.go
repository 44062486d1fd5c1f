package catalog

import "catalog-go/internal/model"

// CategoryStore persists categories. Lookups return (nil, nil) when nothing
// matches.
type CategoryStore interface {
	// FindCategoryByID returns the category with the given id.
	FindCategoryByID(id string) (*model.Category, error)

	// FindCategoryByPath returns the category with an exact path match.
	FindCategoryByPath(path string) (*model.Category, error)

	// FindCategoryByName returns the category with the given name.
	FindCategoryByName(name string) (*model.Category, error)

	// FindCategoriesUnder returns every category strictly below path,
	// ordered by path.
	FindCategoriesUnder(path string) ([]*model.Category, error)

	// ListCategories returns all categories ordered by path.
	ListCategories() ([]*model.Category, error)

	// CreateCategory inserts c using c.ID as its identity.
	CreateCategory(c *model.Category) error

	// UpdateCategoryPath rewrites the path of a single category in place.
	UpdateCategoryPath(id string, path string) error

	// DeleteCategory removes a category by id. Deleting a missing id is a no-op.
	DeleteCategory(id string) error

	// DeleteCategoriesUnder removes every category strictly below path and
	// returns how many were removed.
	DeleteCategoriesUnder(path string) (int64, error)
}

// ProductStore persists products and their category memberships.
type ProductStore interface {
	// FindProductByID returns the product with the given id.
	FindProductByID(id string) (*model.Product, error)

	// FindProductsUnder returns every product that has at least one path equal
	// to or nested under path.
	FindProductsUnder(path string) ([]*model.Product, error)

	// ListProducts returns all products ordered by name.
	ListProducts() ([]*model.Product, error)

	// CreateProduct inserts p using p.ID as its identity.
	CreateProduct(p *model.Product) error

	// UpdateProductPaths replaces the path list of a product.
	UpdateProductPaths(id string, paths []string) error

	// DeleteProduct removes a product by id. Deleting a missing id is a no-op.
	DeleteProduct(id string) error

	// DeleteProductsUnder removes every product that has at least one path
	// equal to or nested under path and returns how many were removed.
	DeleteProductsUnder(path string) (int64, error)
}

// PermissionStore persists access grants keyed by (entity id, entity type).
type PermissionStore interface {
	FindPermissions(entityID string, entityType model.EntityType) ([]model.Permission, error)
	DeletePermissions(entityID string, entityType model.EntityType) error

	// RestorePermissions re-inserts previously captured rows verbatim.
	// Rows that already exist are left untouched.
	RestorePermissions(perms []model.Permission) error
}

// RecycleBinStore persists recycle-bin entries.
type RecycleBinStore interface {
	CreateRecycleBinEntry(entry *model.RecycleBinEntry) error

	// FindRecycleBinEntry looks an entry up by its own id or by the id of
	// the item it holds.
	FindRecycleBinEntry(id string) (*model.RecycleBinEntry, error)

	// ListRecycleBinEntries returns all entries, newest first.
	ListRecycleBinEntries() ([]*model.RecycleBinEntry, error)

	DeleteRecycleBinEntry(id string) error

	// DeleteAllRecycleBinEntries removes every entry and returns the count.
	DeleteAllRecycleBinEntries() (int64, error)

	// RecycleBinStats aggregates the entries by type.
	RecycleBinStats() (*model.RecycleBinStats, error)
}

// OperationStore records mutating commands for the history view.
type OperationStore interface {
	CreateOperation(operation string, parameters string) (*model.Operation, error)
	FinishOperation(id int64, status string) error
	ListOperations(limit int) ([]*model.Operation, error)
}

// Database bundles every store the service needs.
// Each method is its own unit of work; there is no transaction spanning
// several calls.
type Database interface {
	CategoryStore
	ProductStore
	PermissionStore
	RecycleBinStore
	OperationStore

	// GrantPermission inserts a single permission row.
	GrantPermission(p model.Permission) error

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
