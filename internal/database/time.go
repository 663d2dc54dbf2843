package database

import (
	"database/sql/driver"
	"strings"
	"time"
)

// timestampFormats are the layouts found in historical databases, tried in
// order. The driver already parses most TIMESTAMP columns; these cover text
// it leaves alone.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

// nullTime scans any timestamp representation SQLite may hold. Unparseable
// values read as NULL rather than failing the row.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func newNullTime(t time.Time) nullTime {
	return nullTime{Time: t, Valid: !t.IsZero()}
}

func (n *nullTime) Scan(value any) error {
	*n = nullTime{}
	switch v := value.(type) {
	case time.Time:
		n.Time, n.Valid = v, true
	case string:
		n.Time, n.Valid = parseTimestamp(v)
	case []byte:
		n.Time, n.Valid = parseTimestamp(string(v))
	case int64:
		n.Time, n.Valid = time.Unix(v, 0).UTC(), true
	case float64:
		n.Time, n.Valid = time.Unix(int64(v), 0).UTC(), true
	}
	return nil
}

func (n nullTime) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Time, nil
}

// ptr returns the time or nil.
func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
