package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"catalog-go/internal/app"
	"catalog-go/internal/catalog"
	"catalog-go/internal/config"
	"catalog-go/internal/model"
)

func main() {
	if err := app.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file from the default location.
func readConfig() (*config.Config, *app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a CatalogApp. The caller must defer
// app.Close(). operation names the command for the history.
func newApp(operation string, args []string) (*app.CatalogApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewCatalogApp(cfg, operation, strings.Join(args, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "catalog",
	Short:        "Product catalog with a recycle bin",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Run 'catalog db migrate' to create the database.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Archive:     %s\n", cfg.Archive.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Compensate:  %t\n", cfg.RecycleBin.Compensate)
		return nil
	},
}

var configArchiveCheckCmd = &cobra.Command{
	Use:   "check-archive",
	Short: "Verify the archive is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CheckArchive", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateArchive(); err != nil {
			return err
		}
		fmt.Println("Archive OK")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the catalog database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		version, err := app.Migrate(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Database at schema version %d\n", version)
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a copy of the database to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupDatabase", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(args[0]); err != nil {
			return err
		}
		fmt.Printf("Database copied to %s\n", args[0])
		return nil
	},
}

// category command
var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		image, _ := cmd.Flags().GetString("image")
		inherit, _ := cmd.Flags().GetBool("inherit")

		a, err := newApp("CreateCategory", args)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.CreateCategory(catalog.CreateCategoryInput{
			Name:                           args[0],
			ParentPath:                     parent,
			Image:                          image,
			PermissionsInheritedToChildren: inherit,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created category %s at %s\n", c.ID, c.Path)
		return nil
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListCategories", args)
		if err != nil {
			return err
		}
		defer a.Close()

		cats, err := a.ListCategories()
		if err != nil {
			return err
		}
		if len(cats) == 0 {
			fmt.Println("No categories.")
			return nil
		}
		for _, c := range cats {
			fmt.Printf("%s  %-40s  %s\n", c.ID, c.Path, c.Name)
		}
		return nil
	},
}

// product command
var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage products",
}

var productAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, _ := cmd.Flags().GetStringArray("path")
		description, _ := cmd.Flags().GetString("description")
		images, _ := cmd.Flags().GetStringArray("image")
		fields, _ := cmd.Flags().GetStringArray("field")
		folders, _ := cmd.Flags().GetStringArray("folder")

		custom, err := parseFields(fields)
		if err != nil {
			return err
		}

		a, err := newApp("CreateProduct", args)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.CreateProduct(catalog.CreateProductInput{
			Name:          args[0],
			Description:   description,
			Paths:         paths,
			Images:        images,
			CustomFields:  custom,
			UploadFolders: folders,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created product %s in %s\n", p.ID, strings.Join(p.Paths, ", "))
		return nil
	},
}

// parseFields turns "name=value" flags into custom fields.
func parseFields(raw []string) ([]model.CustomField, error) {
	out := make([]model.CustomField, 0, len(raw))
	for _, f := range raw {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q: want name=value", f)
		}
		out = append(out, model.CustomField{Name: name, Value: value})
	}
	return out, nil
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListProducts", args)
		if err != nil {
			return err
		}
		defer a.Close()

		prods, err := a.ListProducts()
		if err != nil {
			return err
		}
		if len(prods) == 0 {
			fmt.Println("No products.")
			return nil
		}
		for _, p := range prods {
			fmt.Printf("%s  %-30s  %s\n", p.ID, p.Name, strings.Join(p.Paths, ", "))
		}
		return nil
	},
}

var productAddPathCmd = &cobra.Command{
	Use:   "add-path PRODUCT_ID PATH",
	Short: "Add a product to another category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddProductPath", args)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.AddProductPath(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Product %s now in %s\n", p.ID, strings.Join(p.Paths, ", "))
		return nil
	},
}

// permission command
var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Manage access grants",
}

var permissionGrantCmd = &cobra.Command{
	Use:   "grant (category|product) ENTITY_ID PRINCIPAL_ID",
	Short: "Grant a principal access to a category or product",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := model.ParseEntityType(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("GrantPermission", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.GrantPermission(entityType, args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("Granted %s access to %s %s\n", args[2], entityType, args[1])
		return nil
	},
}

var permissionListCmd = &cobra.Command{
	Use:   "list (category|product) ENTITY_ID",
	Short: "List the grants of a category or product",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := model.ParseEntityType(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("ListPermissions", args)
		if err != nil {
			return err
		}
		defer a.Close()

		perms, err := a.ListPermissions(entityType, args[1])
		if err != nil {
			return err
		}
		if len(perms) == 0 {
			fmt.Println("No permissions.")
			return nil
		}
		for _, p := range perms {
			fmt.Println(p.AllowedPrincipalID)
		}
		return nil
	},
}

// bin command
var binCmd = &cobra.Command{
	Use:   "bin",
	Short: "Recycle bin",
}

var binListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recycle bin entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		prefix, _ := cmd.Flags().GetString("path")

		filter := catalog.ListFilter{PathPrefix: prefix}
		if typ != "" {
			t, err := model.ParseEntityType(typ)
			if err != nil {
				return err
			}
			filter.ItemType = t
		}

		a, err := newApp("ListEntries", args)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListEntries(filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Recycle bin is empty.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-8s  %s  %-30s  %s\n",
				e.ID,
				e.ItemType,
				e.DeletedAt.Local().Format("2006-01-02 15:04:05"),
				e.OriginalPath,
				e.ItemName,
			)
		}
		return nil
	},
}

var binStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the recycle bin",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetStats", args)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("Total:      %d\n", stats.TotalItems)
		fmt.Printf("Categories: %d\n", stats.ByType[model.EntityCategory])
		fmt.Printf("Products:   %d\n", stats.ByType[model.EntityProduct])
		if stats.OldestDeletedAt != nil {
			fmt.Printf("Oldest:     %s\n", stats.OldestDeletedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var binDeleteCategoryCmd = &cobra.Command{
	Use:   "delete-category CATEGORY_ID",
	Short: "Move a category to the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp("MoveCategoryToRecycleBin", args)
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.MoveCategoryToRecycleBin(args[0], model.DeleteStrategy(strategy), user)
		if err != nil {
			return err
		}
		fmt.Printf("Category %q moved to recycle bin (entry %s, %d children, %s)\n",
			entry.ItemName, entry.ID, entry.Category.ChildrenCount, entry.Category.Strategy)
		return nil
	},
}

var binDeleteProductCmd = &cobra.Command{
	Use:   "delete-product PRODUCT_ID",
	Short: "Remove a product from a category, or move it to the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp("MoveProductToRecycleBin", args)
		if err != nil {
			return err
		}
		defer a.Close()

		removal, err := a.MoveProductToRecycleBin(args[0], category, user)
		if err != nil {
			return err
		}
		if removal.Partial() {
			fmt.Printf("Product removed from %s; still in %s\n", category, strings.Join(removal.RemainingPaths, ", "))
			return nil
		}
		fmt.Printf("Product %q moved to recycle bin (entry %s)\n", removal.Entry.ItemName, removal.Entry.ID)
		return nil
	},
}

var binRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore an item from the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		children, _ := cmd.Flags().GetBool("children")

		a, err := newApp("RestoreItem", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.RestoreItem(args[0], children)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %s %q at %s\n", res.ItemType, res.Name, strings.Join(res.Paths, ", "))
		if len(res.DroppedPaths) > 0 {
			fmt.Printf("Not restored to missing categories: %s\n", strings.Join(res.DroppedPaths, ", "))
		}
		if res.ChildrenMovedBack > 0 {
			fmt.Printf("Moved back %d children\n", res.ChildrenMovedBack)
		}
		if res.DescendantsRestored > 0 {
			fmt.Printf("Restored %d descendants\n", res.DescendantsRestored)
		}
		return nil
	},
}

var binPurgeCmd = &cobra.Command{
	Use:   "purge ID",
	Short: "Permanently delete a recycle bin entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		children, _ := cmd.Flags().GetBool("children")

		a, err := newApp("PermanentlyDelete", args)
		if err != nil {
			return err
		}
		defer a.Close()

		msg, err := a.PermanentlyDelete(args[0], children)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var binEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently delete every recycle bin entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("EmptyRecycleBin", args)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.EmptyRecycleBin()
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d entries\n", n)
		return nil
	},
}

var binArchivedCmd = &cobra.Command{
	Use:   "archived [ENTRY_ID]",
	Short: "List archived entries, or print one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetArchivedEntry", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			ids, err := a.ListArchivedEntries()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No archived entries.")
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		passphrase := ""
		if a.EncryptionEnabled() {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}
		entry, err := a.GetArchivedEntry(args[0], passphrase)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage archive encryption",
}

var encryptionSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupEncryption", args)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupEncryption(passphrase); err != nil {
			return err
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-26s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configArchiveCheckCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// category subcommands
	categoryCmd.AddCommand(categoryAddCmd)
	categoryAddCmd.Flags().String("parent", "", "Path of the parent category (empty for a root category)")
	categoryAddCmd.Flags().String("image", "", "Image URL")
	categoryAddCmd.Flags().Bool("inherit", false, "Children inherit this category's permissions")
	categoryCmd.AddCommand(categoryListCmd)

	// product subcommands
	productCmd.AddCommand(productAddCmd)
	productAddCmd.Flags().StringArray("path", nil, "Category path (repeatable)")
	productAddCmd.Flags().String("description", "", "Product description")
	productAddCmd.Flags().StringArray("image", nil, "Image URL (repeatable)")
	productAddCmd.Flags().StringArray("field", nil, "Custom field as name=value (repeatable)")
	productAddCmd.Flags().StringArray("folder", nil, "Upload folder (repeatable)")
	_ = productAddCmd.MarkFlagRequired("path")
	productCmd.AddCommand(productListCmd)
	productCmd.AddCommand(productAddPathCmd)

	// permission subcommands
	permissionCmd.AddCommand(permissionGrantCmd)
	permissionCmd.AddCommand(permissionListCmd)

	// bin subcommands
	binCmd.AddCommand(binListCmd)
	binListCmd.Flags().String("type", "", "Only entries of this type (category|product)")
	binListCmd.Flags().String("path", "", "Only entries at or under this path")
	binCmd.AddCommand(binStatsCmd)
	binCmd.AddCommand(binDeleteCategoryCmd)
	binDeleteCategoryCmd.Flags().String("strategy", string(model.StrategyCascade), "What happens to children: cascade or move-up")
	binDeleteCategoryCmd.Flags().String("user", "", "User recorded as the deleter")
	binCmd.AddCommand(binDeleteProductCmd)
	binDeleteProductCmd.Flags().String("category", "", "Only remove the product from this category")
	binDeleteProductCmd.Flags().String("user", "", "User recorded as the deleter")
	binCmd.AddCommand(binRestoreCmd)
	binRestoreCmd.Flags().Bool("children", false, "Also restore cascade-deleted descendants")
	binCmd.AddCommand(binPurgeCmd)
	binPurgeCmd.Flags().Bool("children", false, "Report descendants removed with the entry")
	binCmd.AddCommand(binEmptyCmd)
	binCmd.AddCommand(binArchivedCmd)

	// encryption subcommands
	encryptionCmd.AddCommand(encryptionSetupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(permissionCmd)
	rootCmd.AddCommand(binCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
