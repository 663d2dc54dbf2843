package animlib

import "io"

// Vault is an off-machine mirror for database backups. Objects are addressed
// by their backup file name (e.g. "database_backup_20240115_103000.db.age").
// All operations stream so large databases are never held in memory.
type Vault interface {
	// Put stores the object read from r under name, replacing any existing one.
	// size is the number of bytes that will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get writes the named object to w.
	Get(name string, w io.Writer) error

	// List returns the stored object names in lexical order. Backup names embed
	// their timestamp, so lexical order is also chronological.
	List() ([]string, error)

	// Delete removes the named object. Deleting a missing object is not an error.
	Delete(name string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
