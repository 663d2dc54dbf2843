package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAppVersion is stamped into manifests upgraded by the scanner when the
// config does not name a version.
const DefaultAppVersion = "1.0.0"

// DefaultBackupKeep is how many backups are retained when the config does not
// say.
const DefaultBackupKeep = 10

// Config is the contents of animlib.toml.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"`   // "debug", "info" (default), "warn", "error"
	AppVersion string           `toml:"app_version"` // written into upgraded manifests
	Library    LibraryConfig    `toml:"library"`
	Database   DatabaseConfig   `toml:"database"`
	Backup     BackupConfig     `toml:"backup"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Encryption EncryptionConfig `toml:"encryption"`
	Vaults     []VaultConfig    `toml:"vaults"`
}

// LibraryConfig locates the animation library on disk.
type LibraryConfig struct {
	Root   string   `toml:"root"`
	Ignore []string `toml:"ignore"`
}

// DatabaseConfig selects where the library database lives. Type decides
// which of the other fields apply.
type DatabaseConfig struct {
	Type          string `toml:"type"`                      // "sqlite" or "memory"
	DataDir       string `toml:"data_dir,omitempty"`        // only used for type=sqlite
	BusyTimeoutMS int    `toml:"busy_timeout_ms,omitempty"` // 0 uses the driver default
}

// BusyTimeout returns the configured lock wait as a duration.
func (c DatabaseConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// BackupConfig controls database backups.
type BackupConfig struct {
	Dir      string `toml:"dir,omitempty"` // defaults to <data_dir>/backups
	Keep     int    `toml:"keep"`
	Encrypt  bool   `toml:"encrypt"`
	Schedule string `toml:"schedule,omitempty"` // cron expression for the daemon
}

// ScannerConfig controls periodic library rescans.
type ScannerConfig struct {
	Schedule string `toml:"schedule,omitempty"` // cron expression for the daemon
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig describes one backup mirror. Type decides which of the other
// fields apply.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services

	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// NewConfig returns the default config for a data directory at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LogLevel:   "info",
		AppVersion: DefaultAppVersion,
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Backup: BackupConfig{Keep: DefaultBackupKeep},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "animlib.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "animlib.key"),
		},
	}
}

// Decode reads a Config from TOML. Keys the Config does not know are an
// error, so a misspelt section is not silently ignored.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if extra := md.Undecoded(); len(extra) > 0 {
		keys := make([]string, len(extra))
		for i, k := range extra {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// Load reads the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to a new file at path. An existing file is never replaced.
func Init(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if err := Encode(f, cfg); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
