package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the catalog configuration file.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	RecycleBin RecycleBinConfig `toml:"recycle_bin"`
}

// DatabaseConfig selects the catalog store.
// Tagged union: Type decides which other fields apply.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig selects where purged recycle-bin entries are archived.
// Tagged union: Type decides which other fields apply.
type ArchiveConfig struct {
	Type string `toml:"type"` // "none" (default), "memory", "filesystem" or "s3"
	Name string `toml:"name,omitempty"`

	// filesystem
	FSRoot string `toml:"fs_root,omitempty"`

	// s3
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible stores
}

// Enabled reports whether purged entries are archived at all.
func (a ArchiveConfig) Enabled() bool {
	return a.Type != "" && a.Type != "none"
}

// EncryptionConfig holds the age key pair used to encrypt archives.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Enabled reports whether archives are encrypted.
func (e EncryptionConfig) Enabled() bool {
	return e.Type != "" && e.Type != "none"
}

// RecycleBinConfig tunes the recycle-bin engine.
type RecycleBinConfig struct {
	// Compensate rolls back the completed steps of a delete or restore that
	// fails half way.
	Compensate bool `toml:"compensate"`
}

// NewConfig returns a Config rooted at baseDir: a SQLite database under
// baseDir/db, logs under baseDir/log, no archive.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Archive: ArchiveConfig{Type: "none"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "catalog.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "catalog.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config at %s: %w", path, err)
	}
	return nil
}
