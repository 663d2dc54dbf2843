package vault

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"animlib/internal/animlib"
	"animlib/internal/model"
)

func put(t *testing.T, v animlib.Vault, name, content string) {
	t.Helper()
	if err := v.Put(name, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put(%s) error = %v", name, err)
	}
}

// testVaultContract exercises the behavior every Vault implementation shares.
func testVaultContract(t *testing.T, v animlib.Vault) {
	t.Helper()

	t.Run("put and get", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"database_backup_20240115_103000.db", "sqlite bytes"},
			{"database_backup_20240116_103000.db.age", ""},
			{"database_backup_20240117_103000.db", strings.Repeat("x", 10000)},
		}
		for _, tt := range tests {
			put(t, v, tt.name, tt.content)
			var buf bytes.Buffer
			if err := v.Get(tt.name, &buf); err != nil {
				t.Fatalf("Get(%s) error = %v", tt.name, err)
			}
			if buf.String() != tt.content {
				t.Errorf("Get(%s) = %d bytes, want %d", tt.name, buf.Len(), len(tt.content))
			}
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		put(t, v, "database_backup_20240115_103000.db", "newer")
		var buf bytes.Buffer
		v.Get("database_backup_20240115_103000.db", &buf)
		if buf.String() != "newer" {
			t.Errorf("Get() = %q after replace, want newer", buf.String())
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		got, err := v.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{
			"database_backup_20240115_103000.db",
			"database_backup_20240116_103000.db.age",
			"database_backup_20240117_103000.db",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("List() = %v, want %v", got, want)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		err := v.Put("database_backup_20240118_103000.db", strings.NewReader("short"), 100)
		if err == nil {
			t.Fatal("Put() with wrong size error = nil")
		}
		var buf bytes.Buffer
		if err := v.Get("database_backup_20240118_103000.db", &buf); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("truncated object readable: err = %v", err)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		var buf bytes.Buffer
		if err := v.Get("nope.db", &buf); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
		if err := v.Delete("nope.db"); err != nil {
			t.Errorf("Delete(missing) error = %v", err)
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		for _, name := range []string{"", "..", "../escape.db", `dir\file.db`} {
			if err := v.Put(name, strings.NewReader("x"), 1); !errors.Is(err, model.ErrInvalid) {
				t.Errorf("Put(%q) error = %v, want ErrInvalid", name, err)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := v.Delete("database_backup_20240116_103000.db.age"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		got, _ := v.List()
		if len(got) != 2 {
			t.Errorf("List() after delete = %v", got)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}
