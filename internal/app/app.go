package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"catalog-go/internal/catalog"
	"catalog-go/internal/config"
	"catalog-go/internal/database"
	"catalog-go/internal/encryption"
	"catalog-go/internal/model"
	"catalog-go/internal/vault"
)

// CatalogApp is the application layer between the CLI and CatalogService.
// It builds every dependency from config, records mutating commands as
// operations and releases resources on Close.
type CatalogApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	archive   catalog.Vault
	encryptor catalog.Encryptor
	service   *catalog.CatalogService
	op        *Operation
	logger    *zap.Logger
	logFile   *os.File
}

// NewCatalogApp creates a fully wired CatalogApp from the given config.
// operation names the CLI command being run (e.g. "RestoreItem") and
// parameters is a short description of its arguments for the history.
// The caller must call Close when done.
func NewCatalogApp(cfg *config.Config, operation, parameters string) (*CatalogApp, error) {
	clock := catalog.RealClock{}

	db, err := database.NewDatabaseFromConfig(cfg.Database, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking database schema: %w", err)
	}

	archive, err := vault.NewVaultFromConfig(cfg.Archive)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := clock.Now().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := catalog.NewCatalogService(db, archive, enc, newZapAdapter(logger), clock, catalog.UUIDGenerator{},
		catalog.Options{Compensate: cfg.RecycleBin.Compensate})

	return &CatalogApp{
		cfg:       cfg,
		db:        db,
		archive:   archive,
		encryptor: enc,
		service:   svc,
		op:        NewOperation(operation, parameters),
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// Migrate brings the configured database up to the latest schema and
// returns the resulting version.
func Migrate(cfg *config.Config) (uint, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, nil)
	if err != nil {
		return 0, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return 0, fmt.Errorf("migrating database: %w", err)
	}
	version, _, err := db.SchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// run persists the operation before a mutating call and marks it failed
// when the call returns an error.
func (a *CatalogApp) run(fn func() error) error {
	if !a.op.Persisted() {
		dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
		if err != nil {
			return fmt.Errorf("persisting operation: %w", err)
		}
		a.op.ID = dbOp.ID
	}
	if err := fn(); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

func (a *CatalogApp) CreateCategory(input catalog.CreateCategoryInput) (*model.Category, error) {
	var c *model.Category
	err := a.run(func() (err error) {
		c, err = a.service.CreateCategory(input)
		return err
	})
	return c, err
}

func (a *CatalogApp) CreateProduct(input catalog.CreateProductInput) (*model.Product, error) {
	var p *model.Product
	err := a.run(func() (err error) {
		p, err = a.service.CreateProduct(input)
		return err
	})
	return p, err
}

func (a *CatalogApp) AddProductPath(productID, path string) (*model.Product, error) {
	var p *model.Product
	err := a.run(func() (err error) {
		p, err = a.service.AddProductPath(productID, path)
		return err
	})
	return p, err
}

func (a *CatalogApp) GrantPermission(entityType model.EntityType, entityID, principalID string) error {
	return a.run(func() error {
		return a.service.GrantPermission(entityType, entityID, principalID)
	})
}

func (a *CatalogApp) ListPermissions(entityType model.EntityType, entityID string) ([]model.Permission, error) {
	return a.service.ListPermissions(entityType, entityID)
}

func (a *CatalogApp) ListCategories() ([]*model.Category, error) {
	return a.service.ListCategories()
}

func (a *CatalogApp) ListProducts() ([]*model.Product, error) {
	return a.service.ListProducts()
}

// ListEntries returns recycle-bin entries matching filter, newest first.
func (a *CatalogApp) ListEntries(filter catalog.ListFilter) ([]*model.RecycleBinEntry, error) {
	return a.service.ListEntries(filter)
}

func (a *CatalogApp) GetStats() (*model.RecycleBinStats, error) {
	return a.service.GetStats()
}

func (a *CatalogApp) MoveCategoryToRecycleBin(categoryID string, strategy model.DeleteStrategy, userID string) (*model.RecycleBinEntry, error) {
	var entry *model.RecycleBinEntry
	err := a.run(func() (err error) {
		entry, err = a.service.MoveCategoryToRecycleBin(categoryID, strategy, userID)
		return err
	})
	return entry, err
}

func (a *CatalogApp) MoveProductToRecycleBin(productID, categoryPath, userID string) (*catalog.ProductRemoval, error) {
	var removal *catalog.ProductRemoval
	err := a.run(func() (err error) {
		removal, err = a.service.MoveProductToRecycleBin(productID, categoryPath, userID)
		return err
	})
	return removal, err
}

func (a *CatalogApp) RestoreItem(id string, restoreChildren bool) (*catalog.RestoreResult, error) {
	var res *catalog.RestoreResult
	err := a.run(func() (err error) {
		res, err = a.service.RestoreItem(id, restoreChildren)
		return err
	})
	return res, err
}

func (a *CatalogApp) PermanentlyDelete(id string, deleteChildren bool) (string, error) {
	var msg string
	err := a.run(func() (err error) {
		msg, err = a.service.PermanentlyDelete(id, deleteChildren)
		return err
	})
	return msg, err
}

func (a *CatalogApp) EmptyRecycleBin() (int64, error) {
	var n int64
	err := a.run(func() (err error) {
		n, err = a.service.EmptyRecycleBin()
		return err
	})
	return n, err
}

// EncryptionEnabled reports whether archives are encrypted, i.e. whether
// reading one back needs a passphrase.
func (a *CatalogApp) EncryptionEnabled() bool {
	return a.encryptor != nil
}

// SetupEncryption generates the archive key pair.
func (a *CatalogApp) SetupEncryption(passphrase string) error {
	if a.encryptor == nil {
		return errors.New("encryption is not enabled in the config")
	}
	return a.encryptor.Setup(passphrase)
}

// ValidateArchive checks that the configured archive is reachable.
func (a *CatalogApp) ValidateArchive() error {
	if a.archive == nil {
		return errors.New("no archive configured")
	}
	return a.archive.ValidateSetup()
}

func (a *CatalogApp) ListArchivedEntries() ([]string, error) {
	return a.service.ListArchivedEntries()
}

// GetArchivedEntry reads an archived entry back. passphrase is only used
// when encryption is enabled.
func (a *CatalogApp) GetArchivedEntry(entryID, passphrase string) (*model.RecycleBinEntry, error) {
	var decrypt catalog.DecryptionContext
	if a.encryptor != nil {
		ctx, err := a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
		decrypt = ctx
	}
	return a.service.GetArchivedEntry(entryID, decrypt)
}

// GetHistory returns the most recent operations.
func (a *CatalogApp) GetHistory(limit int) ([]*model.Operation, error) {
	return a.service.GetHistory(limit)
}

// Backup writes a consistent copy of the catalog database to destPath.
func (a *CatalogApp) Backup(destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("backup target %s already exists", destPath)
	}
	start := time.Now()
	if err := a.db.BackupTo(destPath); err != nil {
		return err
	}
	a.logger.Info("database backed up", zap.String("dest", destPath), zap.Duration("took", time.Since(start)))
	return nil
}

// Close finishes the operation record if one was persisted, then closes
// the database and the log file.
func (a *CatalogApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	_ = a.logger.Sync()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
