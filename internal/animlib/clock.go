package animlib

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so timestamps written to the library are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator produces animation identifiers. Legacy manifests and new
// versions receive their ids from here.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
