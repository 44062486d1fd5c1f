package catalog_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-go/internal/catalog"
	"catalog-go/internal/model"
	"catalog-go/internal/testutil"
)

func TestMoveCategoryToRecycleBin_Cascade(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	f.category(t, "C", "/a/b")
	f.category(t, "AB", "")

	p1 := f.product(t, "Under B", "/a/b")
	p2 := f.product(t, "Shared", "/a/b/c", "/ab")
	p3 := f.product(t, "Sibling", "/ab")

	require.NoError(t, f.svc.GrantPermission(model.EntityCategory, a.ID, "alice"))
	require.NoError(t, f.svc.GrantPermission(model.EntityCategory, b.ID, "bob"))
	require.NoError(t, f.svc.GrantPermission(model.EntityProduct, p1.ID, "carol"))

	entry, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "admin")
	require.NoError(t, err)

	require.NotNil(t, entry.Category)
	assert.Equal(t, a.ID, entry.ItemID)
	assert.Equal(t, model.EntityCategory, entry.ItemType)
	assert.Equal(t, "/a", entry.OriginalPath)
	assert.Equal(t, "admin", entry.DeletedBy)
	assert.Equal(t, model.StrategyCascade, entry.Category.Strategy)
	assert.Len(t, entry.Category.Descendants, 4)
	assert.Equal(t, 4, entry.Category.ChildrenCount)
	assert.Equal(t, []model.Permission{
		{EntityType: model.EntityCategory, EntityID: a.ID, AllowedPrincipalID: "alice"},
	}, entry.StoredPermissions)

	f.requireNoCategoryAt(t, "/a")
	f.requireNoCategoryAt(t, "/a/b")
	f.requireNoCategoryAt(t, "/a/b/c")
	f.requireCategoryAt(t, "/ab")

	for _, id := range []string{p1.ID, p2.ID} {
		_, err := f.svc.GetProduct(id)
		require.ErrorIs(t, err, catalog.ErrNotFound, "product %s", id)
	}
	_, err = f.svc.GetProduct(p3.ID)
	require.NoError(t, err)

	for _, check := range []struct {
		typ model.EntityType
		id  string
	}{
		{model.EntityCategory, a.ID},
		{model.EntityCategory, b.ID},
		{model.EntityProduct, p1.ID},
	} {
		perms, err := f.db.FindPermissions(check.id, check.typ)
		require.NoError(t, err)
		assert.Empty(t, perms, "permissions of %s", check.id)
	}

	entries := f.requireEntries(t, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Len(t, entries[0].Category.Descendants, 4)
}

func TestMoveCategoryToRecycleBin_DefaultStrategyIsCascade(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.category(t, "A", "")
	f.category(t, "B", "/a")

	entry, err := f.svc.MoveCategoryToRecycleBin(a.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyCascade, entry.Category.Strategy)
	f.requireNoCategoryAt(t, "/a/b")
}

func TestMoveCategoryToRecycleBin_MoveUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	c := f.category(t, "C", "/a/b")
	d := f.category(t, "D", "/a/b/c")
	p := f.product(t, "Widget", "/a/b/c")
	direct := f.product(t, "Direct", "/a/b")

	entry, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "admin")
	require.NoError(t, err)

	assert.Equal(t, model.StrategyMoveUp, entry.Category.Strategy)
	assert.Equal(t, 4, entry.Category.ChildrenCount)
	assert.Equal(t, 4, entry.Category.MovedChildrenCount)
	assert.Empty(t, entry.Category.Descendants)

	f.requireNoCategoryAt(t, "/a/b")
	assert.Equal(t, c.ID, f.requireCategoryAt(t, "/a/c").ID)
	assert.Equal(t, d.ID, f.requireCategoryAt(t, "/a/c/d").ID)

	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/c"}, got.Paths)

	got, err = f.svc.GetProduct(direct.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, got.Paths)

	byID := make(map[string]model.MovedChild)
	for _, m := range entry.Category.MovedChildren {
		byID[m.ItemID] = m
	}
	require.Len(t, byID, 4)
	assert.Equal(t, "/a/b/c", byID[c.ID].PreviousPath)
	assert.Equal(t, "/a/c", byID[c.ID].NewPath)
	assert.Equal(t, []string{"/a/b/c"}, byID[p.ID].PreviousPaths)
	assert.Equal(t, []string{"/a/c"}, byID[p.ID].NewPaths)
}

func TestMoveCategoryToRecycleBin_MoveUpCollapsesDuplicatePaths(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	p := f.product(t, "Both", "/a", "/a/b")

	_, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "")
	require.NoError(t, err)

	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, got.Paths)
}

func TestMoveCategoryToRecycleBin_MoveUpAtRoot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.category(t, "A", "")
	f.category(t, "B", "/a")
	p := f.product(t, "Widget", "/a/b")

	_, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyMoveUp, "")
	require.ErrorIs(t, err, catalog.ErrBadRequest)
	assert.Contains(t, err.Error(), "already at root")

	f.requireCategoryAt(t, "/a")
	f.requireCategoryAt(t, "/a/b")
	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b"}, got.Paths)
	f.requireEntries(t, 0)
}

func TestMoveCategoryToRecycleBin_MoveUpConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	f.category(t, "X", "/a/b")

	// Names are unique, so occupy /a/x by moving another category there.
	other := f.category(t, "Other", "/a")
	require.NoError(t, f.db.UpdateCategoryPath(other.ID, "/a/x"))

	_, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "")
	require.ErrorIs(t, err, catalog.ErrBadRequest)
	assert.Contains(t, err.Error(), "path conflict")

	f.requireCategoryAt(t, "/a/b")
	f.requireCategoryAt(t, "/a/b/x")
	f.requireEntries(t, 0)
}

func TestMoveCategoryToRecycleBin_Rejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.category(t, "A", "")

	_, err := f.svc.MoveCategoryToRecycleBin(a.ID, "sideways", "")
	require.ErrorIs(t, err, catalog.ErrBadRequest)

	_, err = f.svc.MoveCategoryToRecycleBin("nope", model.StrategyCascade, "")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	f.requireCategoryAt(t, "/a")
}

func TestMoveProductToRecycleBin_PartialThenFull(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "X", "")
	f.category(t, "Y", "")
	f.category(t, "Z", "")
	p := f.product(t, "Everywhere", "/x", "/y", "/z")

	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "/x", "admin")
	require.NoError(t, err)
	assert.True(t, removal.Partial())
	assert.Equal(t, []string{"/y", "/z"}, removal.RemainingPaths)
	f.requireEntries(t, 0)

	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/y", "/z"}, got.Paths)

	removal, err = f.svc.MoveProductToRecycleBin(p.ID, "/y", "admin")
	require.NoError(t, err)
	assert.True(t, removal.Partial())
	f.requireEntries(t, 0)

	removal, err = f.svc.MoveProductToRecycleBin(p.ID, "/z", "admin")
	require.NoError(t, err)
	require.False(t, removal.Partial())

	entry := removal.Entry
	require.NotNil(t, entry.Product)
	assert.Equal(t, []string{"/z"}, entry.Product.AllProductPaths)
	assert.Equal(t, "/z", entry.Product.SpecificPathDeleted)
	assert.Equal(t, "/z", entry.OriginalPath)

	_, err = f.svc.GetProduct(p.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	f.requireEntries(t, 1)
}

func TestMoveProductToRecycleBin_Whole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "X", "")
	f.category(t, "Y", "")
	p, err := f.svc.CreateProduct(catalog.CreateProductInput{
		Name:   "Lamp",
		Paths:  []string{"/x", "/y"},
		Images: []string{"https://img.example.com/lamp.png"},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.GrantPermission(model.EntityProduct, p.ID, "alice"))

	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "", "admin")
	require.NoError(t, err)
	require.NotNil(t, removal.Entry)

	entry := removal.Entry
	assert.Equal(t, "/x", entry.OriginalPath)
	assert.Equal(t, "https://img.example.com/lamp.png", entry.ItemImage)
	assert.Equal(t, []string{"/x", "/y"}, entry.Product.AllProductPaths)
	assert.Empty(t, entry.Product.SpecificPathDeleted)
	assert.Len(t, entry.StoredPermissions, 1)

	perms, err := f.db.FindPermissions(p.ID, model.EntityProduct)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestMoveProductToRecycleBin_NestedCategoryPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	f.category(t, "B", "/a")
	f.category(t, "AB", "")
	p := f.product(t, "Deep", "/ab", "/a/b")

	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "/a", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/ab"}, removal.RemainingPaths)
}

func TestMoveProductToRecycleBin_SinglePathIgnoresCategory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "X", "")
	f.category(t, "Y", "")
	p := f.product(t, "Lamp", "/x")

	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "/y", "admin")
	require.NoError(t, err)
	require.NotNil(t, removal.Entry)
	assert.False(t, removal.Partial())
	assert.Equal(t, "/x", removal.Entry.OriginalPath)
	assert.Equal(t, "/x", removal.Entry.Product.SpecificPathDeleted)
	assert.Equal(t, []string{"/x"}, removal.Entry.Product.AllProductPaths)

	_, err = f.svc.GetProduct(p.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	f.requireEntries(t, 1)
}

func TestMoveProductToRecycleBin_Rejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "X", "")
	f.category(t, "Y", "")
	f.category(t, "Z", "")
	p := f.product(t, "Lamp", "/x", "/z")

	_, err := f.svc.MoveProductToRecycleBin(p.ID, "/y", "")
	require.ErrorIs(t, err, catalog.ErrBadRequest)
	assert.Contains(t, err.Error(), "product not in that category")
	f.requireEntries(t, 0)

	_, err = f.svc.MoveProductToRecycleBin("nope", "", "")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCascadeDelete_FailureWithoutCompensation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withFailure("DeleteCategory"))

	a := f.category(t, "A", "")
	f.category(t, "B", "/a")
	p := f.product(t, "Widget", "/a/b")

	_, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.ErrorIs(t, err, testutil.ErrInjected)

	var stepErr *catalog.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "delete category", stepErr.Step)
	assert.Equal(t, []string{
		"save recycle bin entry",
		"delete sub-categories",
		"delete products",
		"delete descendant permissions",
	}, stepErr.Completed)

	// Applied steps stay applied.
	f.requireCategoryAt(t, "/a")
	f.requireNoCategoryAt(t, "/a/b")
	_, err = f.svc.GetProduct(p.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	f.requireEntries(t, 1)
}

func TestCascadeDelete_FailureWithCompensation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withFailure("DeleteCategory"), withCompensation())

	a := f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	p := f.product(t, "Widget", "/a/b")
	require.NoError(t, f.svc.GrantPermission(model.EntityCategory, b.ID, "bob"))

	_, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.ErrorIs(t, err, testutil.ErrInjected)

	f.requireCategoryAt(t, "/a")
	f.requireCategoryAt(t, "/a/b")
	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b"}, got.Paths)

	perms, err := f.db.FindPermissions(b.ID, model.EntityCategory)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
	f.requireEntries(t, 0)
}

func TestMoveUpDelete_FailureWithCompensation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withFailure("DeleteCategory"), withCompensation())

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	f.category(t, "C", "/a/b")
	p := f.product(t, "Widget", "/a/b/c")

	_, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "")
	require.ErrorIs(t, err, testutil.ErrInjected)

	f.requireCategoryAt(t, "/a/b")
	f.requireCategoryAt(t, "/a/b/c")
	f.requireNoCategoryAt(t, "/a/c")
	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b/c"}, got.Paths)
	f.requireEntries(t, 0)
}

func TestProductDelete_FailureWithCompensation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withFailure("DeleteProduct"), withCompensation())

	f.category(t, "X", "")
	p := f.product(t, "Lamp", "/x")

	_, err := f.svc.MoveProductToRecycleBin(p.ID, "", "")
	require.ErrorIs(t, err, testutil.ErrInjected)

	_, err = f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	f.requireEntries(t, 0)
}
