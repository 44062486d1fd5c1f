package catalog

import (
	"fmt"
	"sort"
	"time"

	"catalog-go/internal/model"
)

// RestoreResult describes what RestoreItem put back.
type RestoreResult struct {
	ItemID   string
	ItemType model.EntityType
	Name     string

	// Paths is the restored category path, or the product paths that
	// survived the parent check.
	Paths []string

	// DroppedPaths are product paths whose category no longer exists.
	DroppedPaths []string

	ChildrenMovedBack   int
	DescendantsRestored int
}

// RestoreItem recreates the item held by a recycle-bin entry. id may be the
// entry id or the original item id. On a failed precondition nothing is
// written and the entry is kept.
func (s *CatalogService) RestoreItem(id string, restoreChildren bool) (*RestoreResult, error) {
	entry, err := s.database.FindRecycleBinEntry(id)
	if err != nil {
		return nil, fmt.Errorf("finding recycle bin entry: %w", err)
	}
	if entry == nil {
		return nil, notFound("recycle bin entry %s", id)
	}

	switch entry.ItemType {
	case model.EntityCategory:
		return s.restoreCategory(entry, restoreChildren)
	case model.EntityProduct:
		return s.restoreProduct(entry)
	default:
		return nil, fmt.Errorf("recycle bin entry %s has unknown item type %q", entry.ID, entry.ItemType)
	}
}

func (s *CatalogService) restoreCategory(entry *model.RecycleBinEntry, restoreChildren bool) (*RestoreResult, error) {
	rec := entry.Category
	if rec == nil {
		return nil, fmt.Errorf("recycle bin entry %s has no category record", entry.ID)
	}

	if parent := ParentPath(rec.CategoryPath); parent != "" && parent != "/" {
		c, err := s.database.FindCategoryByPath(parent)
		if err != nil {
			return nil, fmt.Errorf("finding parent category: %w", err)
		}
		if c == nil {
			return nil, badRequest("parent no longer exists: %s", parent)
		}
	}
	if err := s.checkCategoryFree(entry.ItemID, entry.ItemName, rec.CategoryPath); err != nil {
		return nil, err
	}

	var descendants []model.Descendant
	if restoreChildren {
		descendants = rec.Descendants
		if err := s.checkDescendantsFree(descendants); err != nil {
			return nil, err
		}
	}

	moveBack, err := s.planMoveBack(rec.MovedChildren)
	if err != nil {
		return nil, err
	}

	category := &model.Category{
		ID:                             entry.ItemID,
		Name:                           entry.ItemName,
		Path:                           rec.CategoryPath,
		Image:                          entry.ItemImage,
		PermissionsInheritedToChildren: rec.PermissionsInheritedToChildren,
		CreatedAt:                      createdAt(rec.CreatedAt, entry),
		UpdatedAt:                      s.clock.Now(),
	}

	saga := newSaga("category restore", s.opts.Compensate, s.logger)
	saga.Add("recreate category",
		func() error { return s.database.CreateCategory(category) },
		func() error { return s.database.DeleteCategory(category.ID) })
	s.addRestorePermissionsStep(saga, entry)
	for _, m := range moveBack {
		if m.ItemType == model.EntityProduct {
			s.addMoveStep(saga, m, true)
			continue
		}
		s.addMoveCategoryBackStep(saga, m)
	}
	if len(descendants) > 0 {
		s.addRestoreDescendantsStep(saga, descendants)
	}
	s.addConsumeEntryStep(saga, entry)

	if err := saga.Run(); err != nil {
		return nil, fmt.Errorf("restoring category %s: %w", entry.ItemID, err)
	}

	s.logger.Info("category restored",
		"id", category.ID, "path", category.Path,
		"moved_back", len(moveBack), "descendants", len(descendants))
	return &RestoreResult{
		ItemID:              category.ID,
		ItemType:            model.EntityCategory,
		Name:                category.Name,
		Paths:               []string{category.Path},
		ChildrenMovedBack:   len(moveBack),
		DescendantsRestored: len(descendants),
	}, nil
}

func (s *CatalogService) restoreProduct(entry *model.RecycleBinEntry) (*RestoreResult, error) {
	rec := entry.Product
	if rec == nil {
		return nil, fmt.Errorf("recycle bin entry %s has no product record", entry.ID)
	}

	existing, err := s.database.FindProductByID(entry.ItemID)
	if err != nil {
		return nil, fmt.Errorf("checking product: %w", err)
	}
	if existing != nil {
		return nil, badRequest("product %s already exists", entry.ItemID)
	}

	candidates := rec.AllProductPaths
	if len(candidates) == 0 {
		candidates = []string{entry.OriginalPath}
	}

	var kept, dropped []string
	for _, p := range candidates {
		c, err := s.database.FindCategoryByPath(p)
		if err != nil {
			return nil, fmt.Errorf("finding category %s: %w", p, err)
		}
		if c == nil {
			dropped = append(dropped, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil, badRequest("no parent categories exist")
	}

	product := &model.Product{
		ID:            entry.ItemID,
		Name:          entry.ItemName,
		Description:   rec.Description,
		Images:        rec.Images,
		Paths:         kept,
		CustomFields:  rec.CustomFields,
		UploadFolders: rec.UploadFolders,
		CreatedAt:     createdAt(rec.CreatedAt, entry),
		UpdatedAt:     s.clock.Now(),
	}

	saga := newSaga("product restore", s.opts.Compensate, s.logger)
	saga.Add("recreate product",
		func() error { return s.database.CreateProduct(product) },
		func() error { return s.database.DeleteProduct(product.ID) })
	s.addRestorePermissionsStep(saga, entry)
	s.addConsumeEntryStep(saga, entry)

	if err := saga.Run(); err != nil {
		return nil, fmt.Errorf("restoring product %s: %w", entry.ItemID, err)
	}

	if len(dropped) > 0 {
		s.logger.Warn("product restored without some paths", "id", product.ID, "dropped", dropped)
	}
	s.logger.Info("product restored", "id", product.ID, "paths", len(kept))
	return &RestoreResult{
		ItemID:       product.ID,
		ItemType:     model.EntityProduct,
		Name:         product.Name,
		Paths:        kept,
		DroppedPaths: dropped,
	}, nil
}

// checkCategoryFree fails when the id, name or path of a category to be
// recreated is already in use.
func (s *CatalogService) checkCategoryFree(id, name, path string) error {
	c, err := s.database.FindCategoryByPath(path)
	if err != nil {
		return fmt.Errorf("checking category path: %w", err)
	}
	if c == nil {
		c, err = s.database.FindCategoryByName(name)
		if err != nil {
			return fmt.Errorf("checking category name: %w", err)
		}
	}
	if c != nil {
		return badRequest("name already exists: %s", name)
	}

	c, err = s.database.FindCategoryByID(id)
	if err != nil {
		return fmt.Errorf("checking category id: %w", err)
	}
	if c != nil {
		return badRequest("category %s already exists", id)
	}
	return nil
}

func (s *CatalogService) checkDescendantsFree(descendants []model.Descendant) error {
	for _, d := range descendants {
		switch d.Type {
		case model.EntityCategory:
			if d.Category == nil {
				return fmt.Errorf("descendant without category snapshot")
			}
			if err := s.checkCategoryFree(d.Category.ID, d.Category.Name, d.Category.Path); err != nil {
				return err
			}
		case model.EntityProduct:
			if d.Product == nil {
				return fmt.Errorf("descendant without product snapshot")
			}
			p, err := s.database.FindProductByID(d.Product.ID)
			if err != nil {
				return fmt.Errorf("checking product: %w", err)
			}
			if p != nil {
				return badRequest("product %s already exists", d.Product.ID)
			}
		default:
			return fmt.Errorf("descendant has unknown type %q", d.Type)
		}
	}
	return nil
}

// planMoveBack returns the move-up rewrites that still apply, in reverse
// order. Categories that were deleted since, or that are already back at
// their previous path, are skipped. A previous path now taken by another
// category is a conflict.
func (s *CatalogService) planMoveBack(moved []model.MovedChild) ([]model.MovedChild, error) {
	out := make([]model.MovedChild, 0, len(moved))
	for i := len(moved) - 1; i >= 0; i-- {
		m := moved[i]
		if m.ItemType == model.EntityProduct {
			p, err := s.database.FindProductByID(m.ItemID)
			if err != nil {
				return nil, fmt.Errorf("finding moved product: %w", err)
			}
			if p != nil {
				out = append(out, m)
			}
			continue
		}

		c, err := s.database.FindCategoryByID(m.ItemID)
		if err != nil {
			return nil, fmt.Errorf("finding moved category: %w", err)
		}
		if c == nil || c.Path == m.PreviousPath {
			continue
		}
		occupant, err := s.database.FindCategoryByPath(m.PreviousPath)
		if err != nil {
			return nil, fmt.Errorf("checking path %s: %w", m.PreviousPath, err)
		}
		if occupant != nil && occupant.ID != m.ItemID {
			return nil, badRequest("path conflict: %s is already taken", m.PreviousPath)
		}
		m.NewPath = c.Path
		out = append(out, m)
	}
	return out, nil
}

// addMoveCategoryBackStep moves a category back to its previous path and
// carries along every live category and product still nested under its
// current path.
func (s *CatalogService) addMoveCategoryBackStep(saga *Saga, m model.MovedChild) {
	var undo rewriteLog
	saga.Add("move back category "+m.ItemID,
		func() error {
			from, to := m.NewPath, m.PreviousPath

			subCategories, err := s.database.FindCategoriesUnder(from)
			if err != nil {
				return err
			}
			products, err := s.database.FindProductsUnder(from)
			if err != nil {
				return err
			}

			if err := undo.updateCategoryPath(s.database, m.ItemID, from, to); err != nil {
				return err
			}
			sort.SliceStable(subCategories, func(i, j int) bool {
				return len(subCategories[i].Path) < len(subCategories[j].Path)
			})
			for _, c := range subCategories {
				if err := undo.updateCategoryPath(s.database, c.ID, c.Path, RewritePrefix(c.Path, from, to)); err != nil {
					return err
				}
			}
			for _, p := range products {
				next := make([]string, len(p.Paths))
				for i, path := range p.Paths {
					next[i] = RewritePrefix(path, from, to)
				}
				if err := undo.updateProductPaths(s.database, p.ID, p.Paths, next); err != nil {
					return err
				}
			}
			return nil
		},
		undo.revert)
}

func (s *CatalogService) addRestoreDescendantsStep(saga *Saga, descendants []model.Descendant) {
	var created []model.Descendant
	saga.Add("restore descendants",
		func() error {
			for _, d := range descendants {
				var err error
				if d.Type == model.EntityCategory {
					err = s.database.CreateCategory(d.Category)
				} else {
					err = s.database.CreateProduct(d.Product)
				}
				if err != nil {
					return err
				}
				created = append(created, d)
			}
			return nil
		},
		func() error {
			for i := len(created) - 1; i >= 0; i-- {
				d := created[i]
				var err error
				if d.Type == model.EntityCategory {
					err = s.database.DeleteCategory(d.ID())
				} else {
					err = s.database.DeleteProduct(d.ID())
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *CatalogService) addRestorePermissionsStep(saga *Saga, entry *model.RecycleBinEntry) {
	saga.Add("restore permissions",
		func() error { return s.database.RestorePermissions(entry.StoredPermissions) },
		func() error { return s.database.DeletePermissions(entry.ItemID, entry.ItemType) })
}

func (s *CatalogService) addConsumeEntryStep(saga *Saga, entry *model.RecycleBinEntry) {
	saga.Add("delete recycle bin entry",
		func() error { return s.database.DeleteRecycleBinEntry(entry.ID) },
		func() error { return s.database.CreateRecycleBinEntry(entry) })
}

// rewriteLog records applied path updates so a step that makes several of
// them can be reverted as one.
type rewriteLog struct {
	undo []func() error
}

func (l *rewriteLog) updateCategoryPath(db Database, id, from, to string) error {
	if err := db.UpdateCategoryPath(id, to); err != nil {
		return err
	}
	l.undo = append(l.undo, func() error { return db.UpdateCategoryPath(id, from) })
	return nil
}

func (l *rewriteLog) updateProductPaths(db Database, id string, from, to []string) error {
	if err := db.UpdateProductPaths(id, to); err != nil {
		return err
	}
	l.undo = append(l.undo, func() error { return db.UpdateProductPaths(id, from) })
	return nil
}

// revert undoes the recorded updates newest first.
func (l *rewriteLog) revert() error {
	for i := len(l.undo) - 1; i >= 0; i-- {
		if err := l.undo[i](); err != nil {
			return err
		}
	}
	return nil
}

// createdAt falls back to the deletion time for entries written before the
// creation time was recorded.
func createdAt(recorded time.Time, entry *model.RecycleBinEntry) time.Time {
	if recorded.IsZero() {
		return entry.DeletedAt
	}
	return recorded
}
