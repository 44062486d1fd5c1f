package catalog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-go/internal/catalog"
	"catalog-go/internal/model"
	"catalog-go/internal/testutil"
)

func TestRestoreItem_CascadeWithChildren(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.category(t, "A", "")
	f.category(t, "B", "/a")
	p := f.product(t, "Widget", "/a/b")
	require.NoError(t, f.svc.GrantPermission(model.EntityCategory, a.ID, "alice"))

	entry, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	res, err := f.svc.RestoreItem(entry.ID, true)
	require.NoError(t, err)
	assert.Equal(t, a.ID, res.ItemID)
	assert.Equal(t, model.EntityCategory, res.ItemType)
	assert.Equal(t, []string{"/a"}, res.Paths)
	assert.Equal(t, 2, res.DescendantsRestored)

	assert.Equal(t, a.ID, f.requireCategoryAt(t, "/a").ID)
	f.requireCategoryAt(t, "/a/b")
	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b"}, got.Paths)

	perms, err := f.svc.ListPermissions(model.EntityCategory, a.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
	f.requireEntries(t, 0)
}

func TestRestoreItem_KeepsCreationTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	created := f.clock.Now()
	a := f.category(t, "A", "")
	p := f.product(t, "Lamp", "/a")

	f.clock.Advance(time.Hour)
	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "", "")
	require.NoError(t, err)
	_, err = f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.RestoreItem(a.ID, false)
	require.NoError(t, err)
	_, err = f.svc.RestoreItem(removal.Entry.ID, false)
	require.NoError(t, err)

	gotCategory := f.requireCategoryAt(t, "/a")
	assert.True(t, created.Equal(gotCategory.CreatedAt), "category created %v, want %v", gotCategory.CreatedAt, created)
	gotProduct, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.True(t, created.Equal(gotProduct.CreatedAt), "product created %v, want %v", gotProduct.CreatedAt, created)
}

func TestRestoreItem_CascadeWithoutChildren(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.category(t, "A", "")
	f.category(t, "B", "/a")

	_, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	// Restoring by item id works as well as by entry id.
	res, err := f.svc.RestoreItem(a.ID, false)
	require.NoError(t, err)
	assert.Zero(t, res.DescendantsRestored)

	f.requireCategoryAt(t, "/a")
	f.requireNoCategoryAt(t, "/a/b")
	f.requireEntries(t, 0)
}

func TestRestoreItem_MissingParent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.category(t, "A", "")
	b := f.category(t, "B", "/a")

	childEntry, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyCascade, "")
	require.NoError(t, err)
	_, err = f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	_, err = f.svc.RestoreItem(childEntry.ID, true)
	require.ErrorIs(t, err, catalog.ErrBadRequest)
	assert.Contains(t, err.Error(), "parent no longer exists: /a")

	f.requireNoCategoryAt(t, "/a/b")
	f.requireEntries(t, 2)
}

func TestRestoreItem_NameTaken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.category(t, "A", "")
	entry, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.NoError(t, err)
	f.category(t, "A", "")

	_, err = f.svc.RestoreItem(entry.ID, false)
	require.ErrorIs(t, err, catalog.ErrBadRequest)
	assert.Contains(t, err.Error(), "name already exists")
	f.requireEntries(t, 1)
}

func TestRestoreItem_MoveUpReversesRewrite(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	c := f.category(t, "C", "/a/b")
	d := f.category(t, "D", "/a/b/c")
	p := f.product(t, "Widget", "/a/b/c", "/a")
	direct := f.product(t, "Direct", "/a/b")

	before := map[string][]string{
		c.ID:      {c.Path},
		d.ID:      {d.Path},
		p.ID:      p.Paths,
		direct.ID: direct.Paths,
	}

	entry, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "")
	require.NoError(t, err)

	res, err := f.svc.RestoreItem(entry.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 4, res.ChildrenMovedBack)

	assert.Equal(t, b.ID, f.requireCategoryAt(t, "/a/b").ID)
	for _, id := range []string{c.ID, d.ID} {
		got, err := f.svc.GetCategory(id)
		require.NoError(t, err)
		assert.Equal(t, before[id], []string{got.Path})
	}
	for _, id := range []string{p.ID, direct.ID} {
		got, err := f.svc.GetProduct(id)
		require.NoError(t, err)
		assert.Equal(t, before[id], got.Paths)
	}
	f.requireNoCategoryAt(t, "/a/c")
	f.requireEntries(t, 0)
}

func TestRestoreItem_MoveUpSkipsDeletedChildren(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	f.category(t, "C", "/a/b")
	e := f.category(t, "E", "/a/b")

	entry, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "")
	require.NoError(t, err)
	_, err = f.svc.MoveCategoryToRecycleBin(e.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	res, err := f.svc.RestoreItem(entry.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChildrenMovedBack)

	f.requireCategoryAt(t, "/a/b/c")
	f.requireNoCategoryAt(t, "/a/b/e")
	f.requireNoCategoryAt(t, "/a/e")
}

func TestRestoreItem_MoveUpCarriesNewChildren(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "A", "")
	b := f.category(t, "B", "/a")
	f.category(t, "C", "/a/b")

	entry, err := f.svc.MoveCategoryToRecycleBin(b.ID, model.StrategyMoveUp, "")
	require.NoError(t, err)

	// Created under the moved category while the entry was in the bin.
	f.category(t, "New", "/a/c")
	p := f.product(t, "Late", "/a/c/new")

	_, err = f.svc.RestoreItem(entry.ID, false)
	require.NoError(t, err)

	f.requireCategoryAt(t, "/a/b/c/new")
	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b/c/new"}, got.Paths)
}

func TestRestoreItem_Product(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.category(t, "X", "")
	y := f.category(t, "Y", "")
	p, err := f.svc.CreateProduct(catalog.CreateProductInput{
		Name:          "Lamp",
		Description:   "A desk lamp",
		Paths:         []string{"/x", "/y"},
		CustomFields:  []model.CustomField{{Name: "color", Value: "red"}},
		UploadFolders: []string{"lamps"},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.GrantPermission(model.EntityProduct, p.ID, "alice"))

	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "", "")
	require.NoError(t, err)
	_, err = f.svc.MoveCategoryToRecycleBin(y.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.svc.RestoreItem(removal.Entry.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/x"}, res.Paths)
	assert.Equal(t, []string{"/y"}, res.DroppedPaths)

	got, err := f.svc.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/x"}, got.Paths)
	assert.Equal(t, "A desk lamp", got.Description)
	assert.Equal(t, []model.CustomField{{Name: "color", Value: "red"}}, got.CustomFields)
	assert.Equal(t, []string{"lamps"}, got.UploadFolders)

	perms, err := f.svc.ListPermissions(model.EntityProduct, p.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
	f.requireEntries(t, 1)
}

func TestRestoreItem_ProductWithoutParents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	x := f.category(t, "X", "")
	p := f.product(t, "Lamp", "/x")

	removal, err := f.svc.MoveProductToRecycleBin(p.ID, "/x", "")
	require.NoError(t, err)
	_, err = f.svc.MoveCategoryToRecycleBin(x.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	_, err = f.svc.RestoreItem(removal.Entry.ID, false)
	require.ErrorIs(t, err, catalog.ErrBadRequest)
	assert.Contains(t, err.Error(), "no parent categories exist")

	_, err = f.svc.GetProduct(p.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	f.requireEntries(t, 2)
}

func TestRestoreItem_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.RestoreItem("nope", false)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRestoreItem_FailureWithCompensation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withFailure("DeleteRecycleBinEntry"), withCompensation())

	a := f.category(t, "A", "")
	f.category(t, "B", "/a")
	entry, err := f.svc.MoveCategoryToRecycleBin(a.ID, model.StrategyCascade, "")
	require.NoError(t, err)

	_, err = f.svc.RestoreItem(entry.ID, true)
	require.ErrorIs(t, err, testutil.ErrInjected)

	f.requireNoCategoryAt(t, "/a")
	f.requireNoCategoryAt(t, "/a/b")
	f.requireEntries(t, 1)
}
