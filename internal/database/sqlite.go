package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"catalog-go/internal/catalog"
	"catalog-go/internal/database/migrations"
	"catalog-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements catalog.Database on SQLite. Every method is a
// single statement or a single transaction.
type SQLiteDatabase struct {
	db    *sqlx.DB
	path  string
	clock catalog.Clock
}

// NewSQLiteDatabase opens the database at path, which can be a file path or
// ":memory:".
func NewSQLiteDatabase(path string, clock catalog.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteDatabaseFromDB(db, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already configured connection.
// A nil clock means the real clock.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock catalog.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = catalog.RealClock{}
	}
	return &SQLiteDatabase{
		db:    sqlx.NewDb(db, "sqlite3"),
		clock: clock,
	}
}

// OpenConnection opens a SQLite connection with foreign keys and a busy
// timeout enabled. In-memory databases are pinned to one connection since
// each connection would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// subtreeBounds returns the half-open range of paths strictly below base.
// '0' is the byte after '/', so every "base/..." path sorts inside it.
func subtreeBounds(base string) (string, string) {
	return base + "/", base + "0"
}

// Category operations

const categoryColumns = `id, name, path, image, permissions_inherited, created_at, updated_at`

func (s *SQLiteDatabase) findCategory(where string, arg any) (*model.Category, error) {
	var c model.Category
	err := s.db.GetContext(context.Background(), &c,
		`SELECT `+categoryColumns+` FROM categories WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteDatabase) FindCategoryByID(id string) (*model.Category, error) {
	c, err := s.findCategory("id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("finding category by id: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) FindCategoryByPath(path string) (*model.Category, error) {
	c, err := s.findCategory("path = ?", path)
	if err != nil {
		return nil, fmt.Errorf("finding category by path: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) FindCategoryByName(name string) (*model.Category, error) {
	c, err := s.findCategory("name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("finding category by name: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) FindCategoriesUnder(path string) ([]*model.Category, error) {
	lo, hi := subtreeBounds(path)
	var cats []*model.Category
	err := s.db.SelectContext(context.Background(), &cats,
		`SELECT `+categoryColumns+` FROM categories WHERE path >= ? AND path < ? ORDER BY path`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("finding categories under %s: %w", path, err)
	}
	return cats, nil
}

func (s *SQLiteDatabase) ListCategories() ([]*model.Category, error) {
	var cats []*model.Category
	err := s.db.SelectContext(context.Background(), &cats,
		`SELECT `+categoryColumns+` FROM categories ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return cats, nil
}

func (s *SQLiteDatabase) CreateCategory(c *model.Category) error {
	_, err := s.db.NamedExecContext(context.Background(),
		`INSERT INTO categories (`+categoryColumns+`)
		 VALUES (:id, :name, :path, :image, :permissions_inherited, :created_at, :updated_at)`, c)
	if err != nil {
		return fmt.Errorf("creating category: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateCategoryPath(id string, path string) error {
	_, err := s.db.ExecContext(context.Background(),
		`UPDATE categories SET path = ?, updated_at = ? WHERE id = ?`, path, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("updating category path: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteCategory(id string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteCategoriesUnder(path string) (int64, error) {
	lo, hi := subtreeBounds(path)
	res, err := s.db.ExecContext(context.Background(),
		`DELETE FROM categories WHERE path >= ? AND path < ?`, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("deleting categories under %s: %w", path, err)
	}
	return res.RowsAffected()
}

// Product operations

// productRow is the products table as stored. List columns hold JSON.
type productRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Images        string    `db:"images"`
	CustomFields  string    `db:"custom_fields"`
	UploadFolders string    `db:"upload_folders"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

type productPathRow struct {
	ProductID string `db:"product_id"`
	Position  int    `db:"position"`
	Path      string `db:"path"`
}

func newProductRow(p *model.Product) (*productRow, error) {
	images, err := marshalList(p.Images)
	if err != nil {
		return nil, err
	}
	fields, err := marshalList(p.CustomFields)
	if err != nil {
		return nil, err
	}
	folders, err := marshalList(p.UploadFolders)
	if err != nil {
		return nil, err
	}
	return &productRow{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Images:        images,
		CustomFields:  fields,
		UploadFolders: folders,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func (r *productRow) toModel(paths []string) (*model.Product, error) {
	p := &model.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Paths:       paths,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Images), &p.Images); err != nil {
		return nil, fmt.Errorf("decoding images of product %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.CustomFields), &p.CustomFields); err != nil {
		return nil, fmt.Errorf("decoding custom fields of product %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.UploadFolders), &p.UploadFolders); err != nil {
		return nil, fmt.Errorf("decoding upload folders of product %s: %w", r.ID, err)
	}
	return p, nil
}

// marshalList encodes a slice as JSON, writing nil as "[]".
func marshalList[T any](values []T) (string, error) {
	if values == nil {
		values = []T{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

const productColumns = `id, name, description, images, custom_fields, upload_folders, created_at, updated_at`

// loadProducts attaches the ordered path lists to product rows.
func (s *SQLiteDatabase) loadProducts(rows []productRow) ([]*model.Product, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	query, args, err := sqlx.In(
		`SELECT product_id, position, path FROM product_paths WHERE product_id IN (?) ORDER BY product_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("building product path query: %w", err)
	}
	var pathRows []productPathRow
	if err := s.db.SelectContext(context.Background(), &pathRows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("loading product paths: %w", err)
	}

	paths := make(map[string][]string, len(rows))
	for _, pr := range pathRows {
		paths[pr.ProductID] = append(paths[pr.ProductID], pr.Path)
	}

	products := make([]*model.Product, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel(paths[rows[i].ID])
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *SQLiteDatabase) FindProductByID(id string) (*model.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(context.Background(), &rows,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("finding product by id: %w", err)
	}
	products, err := s.loadProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return products[0], nil
}

func (s *SQLiteDatabase) FindProductsUnder(path string) ([]*model.Product, error) {
	lo, hi := subtreeBounds(path)
	var rows []productRow
	err := s.db.SelectContext(context.Background(), &rows,
		`SELECT `+productColumns+` FROM products WHERE id IN (
			SELECT product_id FROM product_paths WHERE path = ? OR (path >= ? AND path < ?)
		) ORDER BY name, id`, path, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("finding products under %s: %w", path, err)
	}
	return s.loadProducts(rows)
}

func (s *SQLiteDatabase) ListProducts() ([]*model.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(context.Background(), &rows,
		`SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return s.loadProducts(rows)
}

func (s *SQLiteDatabase) CreateProduct(p *model.Product) error {
	row, err := newProductRow(p)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}

	tx, err := s.db.BeginTxx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :description, :images, :custom_fields, :upload_folders, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	if err := insertProductPaths(tx, p.ID, p.Paths); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateProductPaths(id string, paths []string) error {
	tx, err := s.db.BeginTxx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM product_paths WHERE product_id = ?`, id); err != nil {
		return fmt.Errorf("clearing product paths: %w", err)
	}
	if err := insertProductPaths(tx, id, paths); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE products SET updated_at = ? WHERE id = ?`, s.clock.Now(), id); err != nil {
		return fmt.Errorf("touching product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertProductPaths(tx *sqlx.Tx, productID string, paths []string) error {
	for i, p := range paths {
		_, err := tx.Exec(`INSERT INTO product_paths (product_id, position, path) VALUES (?, ?, ?)`, productID, i, p)
		if err != nil {
			return fmt.Errorf("inserting product path %s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteDatabase) DeleteProduct(id string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteProductsUnder(path string) (int64, error) {
	lo, hi := subtreeBounds(path)
	res, err := s.db.ExecContext(context.Background(),
		`DELETE FROM products WHERE id IN (
			SELECT product_id FROM product_paths WHERE path = ? OR (path >= ? AND path < ?)
		)`, path, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("deleting products under %s: %w", path, err)
	}
	return res.RowsAffected()
}

// Permission operations

func (s *SQLiteDatabase) FindPermissions(entityID string, entityType model.EntityType) ([]model.Permission, error) {
	var perms []model.Permission
	err := s.db.SelectContext(context.Background(), &perms,
		`SELECT entity_type, entity_id, allowed_principal_id FROM permissions
		 WHERE entity_id = ? AND entity_type = ? ORDER BY allowed_principal_id`, entityID, entityType)
	if err != nil {
		return nil, fmt.Errorf("finding permissions: %w", err)
	}
	return perms, nil
}

func (s *SQLiteDatabase) DeletePermissions(entityID string, entityType model.EntityType) error {
	_, err := s.db.ExecContext(context.Background(),
		`DELETE FROM permissions WHERE entity_id = ? AND entity_type = ?`, entityID, entityType)
	if err != nil {
		return fmt.Errorf("deleting permissions: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GrantPermission(p model.Permission) error {
	return s.RestorePermissions([]model.Permission{p})
}

func (s *SQLiteDatabase) RestorePermissions(perms []model.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(context.Background(),
		`INSERT OR IGNORE INTO permissions (entity_type, entity_id, allowed_principal_id)
		 VALUES (:entity_type, :entity_id, :allowed_principal_id)`, perms)
	if err != nil {
		return fmt.Errorf("restoring permissions: %w", err)
	}
	return nil
}

// Recycle bin operations

type recycleBinRow struct {
	ID           string           `db:"id"`
	ItemID       string           `db:"item_id"`
	ItemType     model.EntityType `db:"item_type"`
	ItemName     string           `db:"item_name"`
	ItemImage    string           `db:"item_image"`
	OriginalPath string           `db:"original_path"`
	DeletedAt    time.Time        `db:"deleted_at"`
	DeletedBy    string           `db:"deleted_by"`
	Payload      string           `db:"payload"`
}

// recycleBinPayload is the JSON stored in recycle_bin.payload.
type recycleBinPayload struct {
	Category          *model.CategoryRecord `json:"category,omitempty"`
	Product           *model.ProductRecord  `json:"product,omitempty"`
	StoredPermissions []model.Permission    `json:"storedPermissions"`
}

func (r *recycleBinRow) toModel() (*model.RecycleBinEntry, error) {
	var payload recycleBinPayload
	if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
		return nil, fmt.Errorf("decoding recycle bin entry %s: %w", r.ID, err)
	}
	return &model.RecycleBinEntry{
		ID:                r.ID,
		ItemID:            r.ItemID,
		ItemType:          r.ItemType,
		ItemName:          r.ItemName,
		ItemImage:         r.ItemImage,
		OriginalPath:      r.OriginalPath,
		DeletedAt:         r.DeletedAt,
		DeletedBy:         r.DeletedBy,
		Category:          payload.Category,
		Product:           payload.Product,
		StoredPermissions: payload.StoredPermissions,
	}, nil
}

const recycleBinColumns = `id, item_id, item_type, item_name, item_image, original_path, deleted_at, deleted_by, payload`

func (s *SQLiteDatabase) CreateRecycleBinEntry(entry *model.RecycleBinEntry) error {
	payload, err := json.Marshal(recycleBinPayload{
		Category:          entry.Category,
		Product:           entry.Product,
		StoredPermissions: entry.StoredPermissions,
	})
	if err != nil {
		return fmt.Errorf("encoding recycle bin entry: %w", err)
	}

	row := recycleBinRow{
		ID:           entry.ID,
		ItemID:       entry.ItemID,
		ItemType:     entry.ItemType,
		ItemName:     entry.ItemName,
		ItemImage:    entry.ItemImage,
		OriginalPath: entry.OriginalPath,
		DeletedAt:    entry.DeletedAt,
		DeletedBy:    entry.DeletedBy,
		Payload:      string(payload),
	}
	_, err = s.db.NamedExecContext(context.Background(),
		`INSERT INTO recycle_bin (`+recycleBinColumns+`)
		 VALUES (:id, :item_id, :item_type, :item_name, :item_image, :original_path, :deleted_at, :deleted_by, :payload)`, row)
	if err != nil {
		return fmt.Errorf("creating recycle bin entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindRecycleBinEntry(id string) (*model.RecycleBinEntry, error) {
	var row recycleBinRow
	err := s.db.GetContext(context.Background(), &row,
		`SELECT `+recycleBinColumns+` FROM recycle_bin WHERE id = ? OR item_id = ?
		 ORDER BY id = ? DESC LIMIT 1`, id, id, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding recycle bin entry: %w", err)
	}
	return row.toModel()
}

func (s *SQLiteDatabase) ListRecycleBinEntries() ([]*model.RecycleBinEntry, error) {
	var rows []recycleBinRow
	err := s.db.SelectContext(context.Background(), &rows,
		`SELECT `+recycleBinColumns+` FROM recycle_bin ORDER BY deleted_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing recycle bin entries: %w", err)
	}

	entries := make([]*model.RecycleBinEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *SQLiteDatabase) DeleteRecycleBinEntry(id string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM recycle_bin WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting recycle bin entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteAllRecycleBinEntries() (int64, error) {
	res, err := s.db.ExecContext(context.Background(), `DELETE FROM recycle_bin`)
	if err != nil {
		return 0, fmt.Errorf("emptying recycle bin: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDatabase) RecycleBinStats() (*model.RecycleBinStats, error) {
	ctx := context.Background()
	stats := &model.RecycleBinStats{ByType: map[model.EntityType]int{}}

	var counts []struct {
		ItemType model.EntityType `db:"item_type"`
		Count    int              `db:"count"`
	}
	err := s.db.SelectContext(ctx, &counts,
		`SELECT item_type, COUNT(*) AS count FROM recycle_bin GROUP BY item_type`)
	if err != nil {
		return nil, fmt.Errorf("counting recycle bin entries: %w", err)
	}
	for _, c := range counts {
		stats.ByType[c.ItemType] = c.Count
		stats.TotalItems += c.Count
	}
	if stats.TotalItems == 0 {
		return stats, nil
	}

	// Selecting the column itself, not MIN(), keeps its DATETIME type.
	var oldest time.Time
	err = s.db.GetContext(ctx, &oldest, `SELECT deleted_at FROM recycle_bin ORDER BY deleted_at LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("finding oldest recycle bin entry: %w", err)
	}
	stats.OldestDeletedAt = &oldest
	return stats, nil
}

// Operation records

func (s *SQLiteDatabase) CreateOperation(operation string, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  s.clock.Now(),
	}
	res, err := s.db.NamedExecContext(context.Background(),
		`INSERT INTO operations (operation, parameters, status, started_at)
		 VALUES (:operation, :parameters, :status, :started_at)`, op)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	_, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`, status, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	var ops []*model.Operation
	err := s.db.SelectContext(context.Background(), &ops,
		`SELECT id, operation, parameters, status, started_at, finished_at
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path, or "" for a wrapped connection.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db.DB)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// SchemaVersion returns the applied migration version and whether the last
// migration left the schema dirty.
func (s *SQLiteDatabase) SchemaVersion() (uint, bool, error) {
	return migrations.Version(s.db.DB)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.ExecContext(context.Background(), "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ catalog.Database = (*SQLiteDatabase)(nil)
