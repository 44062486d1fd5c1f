package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"catalog-go/internal/model"
)

// Options tunes the behavior of multi-step operations.
type Options struct {
	// Compensate undoes already-applied steps when a later step of a
	// delete or restore fails. Off by default: a failure leaves the writes
	// that already happened in place.
	Compensate bool
}

// CatalogService is the orchestration layer over the catalog stores. It
// owns the recycle-bin engine and the maintenance operations used to build
// the tree.
type CatalogService struct {
	database  Database
	archive   Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	validate  *validator.Validate
	opts      Options
}

// NewCatalogService creates a CatalogService. archive and encryptor are
// optional: without an archive, purged entries are simply dropped; without
// an encryptor, archives are written as plain JSON.
func NewCatalogService(database Database, archive Vault, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, opts Options) *CatalogService {
	return &CatalogService{
		database:  database,
		archive:   archive,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		opts:      opts,
	}
}

// CreateCategoryInput describes a new category. The path segment is derived
// from Name.
type CreateCategoryInput struct {
	Name                           string `validate:"required,max=200,excludesall=/"`
	ParentPath                     string `validate:"omitempty,startswith=/"`
	Image                          string `validate:"omitempty,url"`
	PermissionsInheritedToChildren bool
}

// CreateProductInput describes a new product.
type CreateProductInput struct {
	Name          string   `validate:"required,max=200"`
	Description   string   `validate:"max=2000"`
	Paths         []string `validate:"required,min=1,dive,startswith=/"`
	Images        []string `validate:"dive,url"`
	CustomFields  []model.CustomField
	UploadFolders []string `validate:"dive,required"`
}

// Segment turns a display name into a path segment: lower case, spaces
// replaced with "-".
func Segment(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// CreateCategory adds a category under an existing parent, or at the root
// when ParentPath is empty.
func (s *CatalogService) CreateCategory(input CreateCategoryInput) (*model.Category, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, badRequest("invalid category: %v", err)
	}

	if input.ParentPath != "" {
		parent, err := s.database.FindCategoryByPath(input.ParentPath)
		if err != nil {
			return nil, fmt.Errorf("finding parent category: %w", err)
		}
		if parent == nil {
			return nil, badRequest("parent category %s does not exist", input.ParentPath)
		}
	}

	path := JoinPath(input.ParentPath, Segment(input.Name))
	if err := ValidatePath(path); err != nil {
		return nil, badRequest("%v", err)
	}

	existing, err := s.database.FindCategoryByName(input.Name)
	if err != nil {
		return nil, fmt.Errorf("checking category name: %w", err)
	}
	if existing != nil {
		return nil, badRequest("category name %q already exists", input.Name)
	}
	existing, err = s.database.FindCategoryByPath(path)
	if err != nil {
		return nil, fmt.Errorf("checking category path: %w", err)
	}
	if existing != nil {
		return nil, badRequest("category path %s already exists", path)
	}

	now := s.clock.Now()
	c := &model.Category{
		ID:                             s.idgen.New(),
		Name:                           input.Name,
		Path:                           path,
		Image:                          input.Image,
		PermissionsInheritedToChildren: input.PermissionsInheritedToChildren,
		CreatedAt:                      now,
		UpdatedAt:                      now,
	}
	if err := s.database.CreateCategory(c); err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}

	s.logger.Info("category created", "id", c.ID, "path", c.Path)
	return c, nil
}

// CreateProduct adds a product to one or more existing categories.
// Duplicate paths in the input are collapsed.
func (s *CatalogService) CreateProduct(input CreateProductInput) (*model.Product, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, badRequest("invalid product: %v", err)
	}

	paths := dedupe(input.Paths)
	for _, p := range paths {
		c, err := s.database.FindCategoryByPath(p)
		if err != nil {
			return nil, fmt.Errorf("finding category %s: %w", p, err)
		}
		if c == nil {
			return nil, badRequest("category %s does not exist", p)
		}
	}

	now := s.clock.Now()
	p := &model.Product{
		ID:            s.idgen.New(),
		Name:          input.Name,
		Description:   input.Description,
		Images:        input.Images,
		Paths:         paths,
		CustomFields:  input.CustomFields,
		UploadFolders: input.UploadFolders,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.database.CreateProduct(p); err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	s.logger.Info("product created", "id", p.ID, "paths", len(p.Paths))
	return p, nil
}

// AddProductPath makes an existing product a member of one more category.
func (s *CatalogService) AddProductPath(productID, path string) (*model.Product, error) {
	p, err := s.GetProduct(productID)
	if err != nil {
		return nil, err
	}

	c, err := s.database.FindCategoryByPath(path)
	if err != nil {
		return nil, fmt.Errorf("finding category %s: %w", path, err)
	}
	if c == nil {
		return nil, badRequest("category %s does not exist", path)
	}
	for _, existing := range p.Paths {
		if existing == path {
			return nil, badRequest("product already in category %s", path)
		}
	}

	p.Paths = append(p.Paths, path)
	if err := s.database.UpdateProductPaths(p.ID, p.Paths); err != nil {
		return nil, fmt.Errorf("updating product paths: %w", err)
	}

	s.logger.Info("product path added", "id", p.ID, "path", path)
	return p, nil
}

// GrantPermission allows principalID to access a category or product.
func (s *CatalogService) GrantPermission(entityType model.EntityType, entityID, principalID string) error {
	if strings.TrimSpace(principalID) == "" {
		return badRequest("principal id is required")
	}
	if err := s.requireEntity(entityType, entityID); err != nil {
		return err
	}

	err := s.database.GrantPermission(model.Permission{
		EntityType:         entityType,
		EntityID:           entityID,
		AllowedPrincipalID: principalID,
	})
	if err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}

	s.logger.Info("permission granted", "type", entityType, "id", entityID, "principal", principalID)
	return nil
}

// ListPermissions returns the grants of a single category or product.
func (s *CatalogService) ListPermissions(entityType model.EntityType, entityID string) ([]model.Permission, error) {
	perms, err := s.database.FindPermissions(entityID, entityType)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	return perms, nil
}

// GetCategory returns a live category or a NotFound error.
func (s *CatalogService) GetCategory(id string) (*model.Category, error) {
	c, err := s.database.FindCategoryByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding category: %w", err)
	}
	if c == nil {
		return nil, notFound("category %s", id)
	}
	return c, nil
}

// GetProduct returns a live product or a NotFound error.
func (s *CatalogService) GetProduct(id string) (*model.Product, error) {
	p, err := s.database.FindProductByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding product: %w", err)
	}
	if p == nil {
		return nil, notFound("product %s", id)
	}
	return p, nil
}

func (s *CatalogService) ListCategories() ([]*model.Category, error) {
	cats, err := s.database.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return cats, nil
}

func (s *CatalogService) ListProducts() ([]*model.Product, error) {
	prods, err := s.database.ListProducts()
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return prods, nil
}

// GetHistory returns the most recent operations, newest first.
func (s *CatalogService) GetHistory(limit int) ([]*model.Operation, error) {
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

func (s *CatalogService) requireEntity(entityType model.EntityType, id string) error {
	switch entityType {
	case model.EntityCategory:
		_, err := s.GetCategory(id)
		return err
	case model.EntityProduct:
		_, err := s.GetProduct(id)
		return err
	default:
		return badRequest("unknown entity type %q", entityType)
	}
}

// dedupe keeps the first occurrence of each string, preserving order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
