package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	original := &Config{
		BaseDir:    "/home/user/.local/share/animlib",
		LogDir:     "/home/user/.local/share/animlib/log",
		LogLevel:   "debug",
		AppVersion: "2.1.0",
		Library: LibraryConfig{
			Root:   "/mnt/anim",
			Ignore: []string{".*", "scratch"},
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/animlib/data", BusyTimeoutMS: 5000},
		Backup:   BackupConfig{Keep: 3, Encrypt: true, Schedule: "0 3 * * *"},
		Scanner:  ScannerConfig{Schedule: "*/30 * * * *"},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
			{Type: "s3", Name: "offsite", S3Bucket: "anim-backups", S3Region: "eu-west-1", S3Endpoint: "http://minio:9000"},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/animlib/keys/animlib.pub",
			PrivateKeyPath: "/home/user/.local/share/animlib/keys/animlib.key",
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, original); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.AppVersion != "2.1.0" {
		t.Errorf("AppVersion = %q, want %q", got.AppVersion, "2.1.0")
	}
	if got.Library.Root != "/mnt/anim" {
		t.Errorf("Library.Root = %q, want %q", got.Library.Root, "/mnt/anim")
	}
	if len(got.Library.Ignore) != 2 {
		t.Fatalf("len(Library.Ignore) = %d, want 2", len(got.Library.Ignore))
	}
	if got.Database.BusyTimeout() != 5*time.Second {
		t.Errorf("Database.BusyTimeout() = %v, want 5s", got.Database.BusyTimeout())
	}
	if got.Backup != original.Backup {
		t.Errorf("Backup = %+v, want %+v", got.Backup, original.Backup)
	}
	if got.Scanner.Schedule != "*/30 * * * *" {
		t.Errorf("Scanner.Schedule = %q", got.Scanner.Schedule)
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if got.Vaults[1].S3Endpoint != "http://minio:9000" {
		t.Errorf("Vault.S3Endpoint = %q, want %q", got.Vaults[1].S3Endpoint, "http://minio:9000")
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
}

func TestDecode_Sections(t *testing.T) {
	input := `
base_dir = "/data"

[library]
root = "/library"

[database]
type = "memory"

[[vaults]]
type = "memory"
name = "scratch"
`
	cfg, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if cfg.Library.Root != "/library" {
		t.Errorf("Library.Root = %q, want %q", cfg.Library.Root, "/library")
	}
	if cfg.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, "memory")
	}
	if cfg.Database.BusyTimeout() != 0 {
		t.Errorf("Database.BusyTimeout() = %v, want 0", cfg.Database.BusyTimeout())
	}
	if len(cfg.Vaults) != 1 || cfg.Vaults[0].Name != "scratch" {
		t.Errorf("Vaults = %+v", cfg.Vaults)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", "base_dir = "},
		{"unknown top-level key", "log_levle = \"debug\""},
		{"unknown section key", "[library]\nroots = \"/anim\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input)); err == nil {
				t.Errorf("Decode(%q) error = nil", tt.input)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/animlib")

	if cfg.BaseDir != "/data/animlib" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/animlib")
	}
	if cfg.LogDir != "/data/animlib/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/animlib/log")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.AppVersion != DefaultAppVersion {
		t.Errorf("AppVersion = %q, want %q", cfg.AppVersion, DefaultAppVersion)
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != "/data/animlib/data" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Backup.Keep != DefaultBackupKeep {
		t.Errorf("Backup.Keep = %d, want %d", cfg.Backup.Keep, DefaultBackupKeep)
	}
	if cfg.Encryption.PublicKeyPath != "/data/animlib/keys/animlib.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/animlib/keys/animlib.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/animlib/keys/animlib.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/animlib/keys/animlib.key")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "animlib.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "animlib.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "animlib.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}
		cfg.Library.Root = "/anim"

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Library.Root != "/anim" {
			t.Errorf("Library.Root = %q, want %q", got.Library.Root, "/anim")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/path/animlib.toml")
		if err == nil {
			t.Fatal("Load() expected error for missing file")
		}
	})
}
