package catalog

import (
	"fmt"
	"sort"

	"catalog-go/internal/model"
)

// ProductRemoval is the outcome of MoveProductToRecycleBin. Entry is nil when
// only one membership path was removed and the product stayed live.
type ProductRemoval struct {
	Entry          *model.RecycleBinEntry
	RemainingPaths []string
}

// Partial reports whether the product is still live.
func (r *ProductRemoval) Partial() bool {
	return r.Entry == nil
}

// MoveCategoryToRecycleBin soft-deletes a category. An empty strategy means
// cascade.
func (s *CatalogService) MoveCategoryToRecycleBin(categoryID string, strategy model.DeleteStrategy, userID string) (*model.RecycleBinEntry, error) {
	if strategy == "" {
		strategy = model.StrategyCascade
	}
	if strategy != model.StrategyCascade && strategy != model.StrategyMoveUp {
		return nil, badRequest("unknown delete strategy %q", strategy)
	}

	target, err := s.GetCategory(categoryID)
	if err != nil {
		return nil, err
	}
	if err := s.requireNotInBin(target.ID); err != nil {
		return nil, err
	}

	perms, err := s.database.FindPermissions(target.ID, model.EntityCategory)
	if err != nil {
		return nil, fmt.Errorf("finding category permissions: %w", err)
	}

	if strategy == model.StrategyMoveUp {
		return s.moveUpDelete(target, perms, userID)
	}
	return s.cascadeDelete(target, perms, userID)
}

func (s *CatalogService) cascadeDelete(target *model.Category, perms []model.Permission, userID string) (*model.RecycleBinEntry, error) {
	subCategories, err := s.database.FindCategoriesUnder(target.Path)
	if err != nil {
		return nil, fmt.Errorf("finding sub-categories: %w", err)
	}
	products, err := s.database.FindProductsUnder(target.Path)
	if err != nil {
		return nil, fmt.Errorf("finding products: %w", err)
	}

	descendants := snapshotDescendants(subCategories, products)
	entry := s.newCategoryEntry(target, perms, userID)
	entry.Category.Strategy = model.StrategyCascade
	entry.Category.ChildrenCount = len(descendants)
	entry.Category.Descendants = descendants

	// Descendant grants are dropped, not stored. They are only captured so a
	// compensating run can put them back.
	var droppedPerms []model.Permission

	saga := newSaga("cascade delete", s.opts.Compensate, s.logger)
	s.addSaveEntryStep(saga, entry)
	saga.Add("delete sub-categories",
		func() error {
			_, err := s.database.DeleteCategoriesUnder(target.Path)
			return err
		},
		func() error {
			for _, c := range subCategories {
				if err := s.database.CreateCategory(c); err != nil {
					return err
				}
			}
			return nil
		})
	saga.Add("delete products",
		func() error {
			_, err := s.database.DeleteProductsUnder(target.Path)
			return err
		},
		func() error {
			for _, p := range products {
				if err := s.database.CreateProduct(p); err != nil {
					return err
				}
			}
			return nil
		})
	saga.Add("delete descendant permissions",
		func() error {
			for _, d := range descendants {
				id := d.ID()
				rows, err := s.database.FindPermissions(id, d.Type)
				if err != nil {
					return err
				}
				if err := s.database.DeletePermissions(id, d.Type); err != nil {
					return err
				}
				droppedPerms = append(droppedPerms, rows...)
			}
			return nil
		},
		func() error { return s.database.RestorePermissions(droppedPerms) })
	s.addDeleteCategoryStep(saga, target, perms)

	if err := saga.Run(); err != nil {
		return nil, fmt.Errorf("moving category %s to recycle bin: %w", target.ID, err)
	}

	s.logger.Info("category moved to recycle bin",
		"id", target.ID, "path", target.Path, "strategy", model.StrategyCascade,
		"descendants", len(descendants), "entry", entry.ID)
	return entry, nil
}

func (s *CatalogService) moveUpDelete(target *model.Category, perms []model.Permission, userID string) (*model.RecycleBinEntry, error) {
	parent := ParentPath(target.Path)
	if parent == "" {
		return nil, badRequest("cannot move children up: already at root")
	}

	subCategories, err := s.database.FindCategoriesUnder(target.Path)
	if err != nil {
		return nil, fmt.Errorf("finding sub-categories: %w", err)
	}
	products, err := s.database.FindProductsUnder(target.Path)
	if err != nil {
		return nil, fmt.Errorf("finding products: %w", err)
	}

	moved := planMoveUp(target.Path, parent, subCategories, products)
	if err := s.checkMoveUpConflicts(target.Path, moved); err != nil {
		return nil, err
	}

	entry := s.newCategoryEntry(target, perms, userID)
	entry.Category.Strategy = model.StrategyMoveUp
	entry.Category.ChildrenCount = len(subCategories) + len(products)
	entry.Category.MovedChildren = moved
	entry.Category.MovedChildrenCount = len(moved)

	saga := newSaga("move-up delete", s.opts.Compensate, s.logger)
	for _, m := range moved {
		s.addMoveStep(saga, m, false)
	}
	s.addSaveEntryStep(saga, entry)
	s.addDeleteCategoryStep(saga, target, perms)

	if err := saga.Run(); err != nil {
		return nil, fmt.Errorf("moving category %s to recycle bin: %w", target.ID, err)
	}

	s.logger.Info("category moved to recycle bin",
		"id", target.ID, "path", target.Path, "strategy", model.StrategyMoveUp,
		"moved", len(moved), "entry", entry.ID)
	return entry, nil
}

// MoveProductToRecycleBin removes a product from categoryPath, or from the
// catalog when categoryPath is empty. A product that keeps at least one
// other path stays live and no entry is created.
func (s *CatalogService) MoveProductToRecycleBin(productID, categoryPath, userID string) (*ProductRemoval, error) {
	product, err := s.GetProduct(productID)
	if err != nil {
		return nil, err
	}

	specific := ""
	switch {
	case categoryPath != "" && len(product.Paths) > 1:
		idx := -1
		for i, p := range product.Paths {
			if IsDescendantOrSelf(p, categoryPath) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, badRequest("product not in that category")
		}
		specific = product.Paths[idx]

		remaining := make([]string, 0, len(product.Paths)-1)
		remaining = append(remaining, product.Paths[:idx]...)
		remaining = append(remaining, product.Paths[idx+1:]...)
		if err := s.database.UpdateProductPaths(product.ID, remaining); err != nil {
			return nil, fmt.Errorf("removing product path: %w", err)
		}
		s.logger.Info("product path removed", "id", product.ID, "path", specific, "remaining", len(remaining))
		return &ProductRemoval{RemainingPaths: remaining}, nil
	case categoryPath != "" && len(product.Paths) == 1:
		// A single-path product goes to the bin whole, whatever category
		// the caller named.
		specific = product.Paths[0]
	}

	if err := s.requireNotInBin(product.ID); err != nil {
		return nil, err
	}
	perms, err := s.database.FindPermissions(product.ID, model.EntityProduct)
	if err != nil {
		return nil, fmt.Errorf("finding product permissions: %w", err)
	}

	originalPath := specific
	if originalPath == "" && len(product.Paths) > 0 {
		originalPath = product.Paths[0]
	}

	entry := s.newEntry(product.ID, model.EntityProduct, product.Name, firstOrEmpty(product.Images), originalPath, userID, perms)
	entry.Product = &model.ProductRecord{
		Description:         product.Description,
		Images:              product.Images,
		CustomFields:        product.CustomFields,
		UploadFolders:       product.UploadFolders,
		AllProductPaths:     append([]string(nil), product.Paths...),
		SpecificPathDeleted: specific,
		CreatedAt:           product.CreatedAt,
	}

	saga := newSaga("product delete", s.opts.Compensate, s.logger)
	s.addSaveEntryStep(saga, entry)
	saga.Add("delete product",
		func() error { return s.database.DeleteProduct(product.ID) },
		func() error { return s.database.CreateProduct(product) })
	saga.Add("delete product permissions",
		func() error { return s.database.DeletePermissions(product.ID, model.EntityProduct) },
		func() error { return s.database.RestorePermissions(perms) })

	if err := saga.Run(); err != nil {
		return nil, fmt.Errorf("moving product %s to recycle bin: %w", product.ID, err)
	}

	s.logger.Info("product moved to recycle bin", "id", product.ID, "paths", len(product.Paths), "entry", entry.ID)
	return &ProductRemoval{Entry: entry}, nil
}

// snapshotDescendants flattens the cascade query results into entry form,
// categories first.
func snapshotDescendants(categories []*model.Category, products []*model.Product) []model.Descendant {
	out := make([]model.Descendant, 0, len(categories)+len(products))
	for _, c := range categories {
		out = append(out, model.CategoryDescendant(*c))
	}
	for _, p := range products {
		out = append(out, model.ProductDescendant(*p))
	}
	return out
}

// planMoveUp computes every path rewrite of a move-up delete. Categories
// come first, shortest path first, so a parent always lands before its
// children. Product paths that end up identical are collapsed.
func planMoveUp(targetPath, parentPath string, categories []*model.Category, products []*model.Product) []model.MovedChild {
	ordered := append([]*model.Category(nil), categories...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Path) < len(ordered[j].Path)
	})

	moved := make([]model.MovedChild, 0, len(ordered)+len(products))
	for _, c := range ordered {
		moved = append(moved, model.MovedChild{
			ItemID:       c.ID,
			ItemType:     model.EntityCategory,
			PreviousPath: c.Path,
			NewPath:      RewritePrefix(c.Path, targetPath, parentPath),
		})
	}
	for _, p := range products {
		newPaths := make([]string, 0, len(p.Paths))
		for _, path := range p.Paths {
			newPaths = append(newPaths, RewritePrefix(path, targetPath, parentPath))
		}
		moved = append(moved, model.MovedChild{
			ItemID:        p.ID,
			ItemType:      model.EntityProduct,
			PreviousPaths: append([]string(nil), p.Paths...),
			NewPaths:      dedupe(newPaths),
		})
	}
	return moved
}

// checkMoveUpConflicts fails when a rewritten category path would land on
// the deleted category itself or on a live category that is not moving.
func (s *CatalogService) checkMoveUpConflicts(targetPath string, moved []model.MovedChild) error {
	for _, m := range moved {
		if m.ItemType != model.EntityCategory {
			continue
		}
		if m.NewPath == targetPath {
			return badRequest("path conflict: %s would move onto %s", m.PreviousPath, targetPath)
		}
		existing, err := s.database.FindCategoryByPath(m.NewPath)
		if err != nil {
			return fmt.Errorf("checking path %s: %w", m.NewPath, err)
		}
		if existing != nil && !IsDescendantOrSelf(existing.Path, targetPath) {
			return badRequest("path conflict: %s is already taken", m.NewPath)
		}
	}
	return nil
}

// addMoveStep applies one recorded rewrite. reverse applies it backwards.
func (s *CatalogService) addMoveStep(saga *Saga, m model.MovedChild, reverse bool) {
	from, to := m.PreviousPath, m.NewPath
	fromPaths, toPaths := m.PreviousPaths, m.NewPaths
	if reverse {
		from, to = to, from
		fromPaths, toPaths = toPaths, fromPaths
	}

	if m.ItemType == model.EntityCategory {
		saga.Add("move category "+m.ItemID,
			func() error { return s.database.UpdateCategoryPath(m.ItemID, to) },
			func() error { return s.database.UpdateCategoryPath(m.ItemID, from) })
		return
	}
	saga.Add("move product "+m.ItemID,
		func() error { return s.database.UpdateProductPaths(m.ItemID, toPaths) },
		func() error { return s.database.UpdateProductPaths(m.ItemID, fromPaths) })
}

func (s *CatalogService) addSaveEntryStep(saga *Saga, entry *model.RecycleBinEntry) {
	saga.Add("save recycle bin entry",
		func() error { return s.database.CreateRecycleBinEntry(entry) },
		func() error { return s.database.DeleteRecycleBinEntry(entry.ID) })
}

func (s *CatalogService) addDeleteCategoryStep(saga *Saga, target *model.Category, perms []model.Permission) {
	saga.Add("delete category",
		func() error { return s.database.DeleteCategory(target.ID) },
		func() error { return s.database.CreateCategory(target) })
	saga.Add("delete category permissions",
		func() error { return s.database.DeletePermissions(target.ID, model.EntityCategory) },
		func() error { return s.database.RestorePermissions(perms) })
}

func (s *CatalogService) newCategoryEntry(c *model.Category, perms []model.Permission, userID string) *model.RecycleBinEntry {
	entry := s.newEntry(c.ID, model.EntityCategory, c.Name, c.Image, c.Path, userID, perms)
	entry.Category = &model.CategoryRecord{
		CategoryPath:                   c.Path,
		PermissionsInheritedToChildren: c.PermissionsInheritedToChildren,
		CreatedAt:                      c.CreatedAt,
	}
	return entry
}

func (s *CatalogService) newEntry(itemID string, itemType model.EntityType, name, image, originalPath, userID string, perms []model.Permission) *model.RecycleBinEntry {
	if perms == nil {
		perms = []model.Permission{}
	}
	return &model.RecycleBinEntry{
		ID:                s.idgen.New(),
		ItemID:            itemID,
		ItemType:          itemType,
		ItemName:          name,
		ItemImage:         image,
		OriginalPath:      originalPath,
		DeletedAt:         s.clock.Now(),
		DeletedBy:         userID,
		StoredPermissions: perms,
	}
}

func (s *CatalogService) requireNotInBin(itemID string) error {
	existing, err := s.database.FindRecycleBinEntry(itemID)
	if err != nil {
		return fmt.Errorf("checking recycle bin: %w", err)
	}
	if existing != nil {
		return badRequest("item %s is already in the recycle bin", itemID)
	}
	return nil
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
