package migrations

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Signature describes a schema structurally: one entry per table and per
// named index. Two databases with equal signatures have the same tables,
// columns, and indexes regardless of how they were built. Automatic indexes
// backing UNIQUE constraints are covered by the column definitions.
type Signature map[string]string

// ReadSignature captures the signature of the connected database.
func ReadSignature(ctx context.Context, q Querier) (Signature, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT type, name, tbl_name FROM sqlite_master
		WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("listing schema objects: %w", err)
	}
	type object struct{ typ, name, table string }
	var objects []object
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.typ, &o.name, &o.table); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning schema object: %w", err)
		}
		objects = append(objects, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sig := Signature{}
	for _, o := range objects {
		var desc string
		var err error
		if o.typ == "table" {
			desc, err = describeTable(ctx, q, o.name)
		} else {
			desc, err = describeIndex(ctx, q, o.table, o.name)
		}
		if err != nil {
			return nil, err
		}
		sig[o.typ+" "+o.name] = desc
	}
	return sig, nil
}

// Diff lists the keys whose descriptions differ between s and other.
func (s Signature) Diff(other Signature) []string {
	var diff []string
	for k, v := range s {
		if ov, ok := other[k]; !ok {
			diff = append(diff, "-"+k)
		} else if ov != v {
			diff = append(diff, fmt.Sprintf("~%s: %s != %s", k, v, ov))
		}
	}
	for k := range other {
		if _, ok := s[k]; !ok {
			diff = append(diff, "+"+k)
		}
	}
	sort.Strings(diff)
	return diff
}

func describeTable(ctx context.Context, q Querier, table string) (string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", COALESCE(dflt_value, ''), pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return "", fmt.Errorf("describing table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, typ, dflt string
		var notNull, pk int
		if err := rows.Scan(&name, &typ, &notNull, &dflt, &pk); err != nil {
			return "", fmt.Errorf("describing table %s: %w", table, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s notnull=%d default=%s pk=%d",
			name, strings.ToUpper(typ), notNull, dflt, pk))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	sort.Strings(cols)
	return strings.Join(cols, "; "), nil
}

func describeIndex(ctx context.Context, q Querier, table, index string) (string, error) {
	var unique, partial int
	err := q.QueryRowContext(ctx,
		`SELECT "unique", partial FROM pragma_index_list(?) WHERE name = ?`, table, index).Scan(&unique, &partial)
	if err != nil {
		return "", fmt.Errorf("describing index %s: %w", index, err)
	}

	rows, err := q.QueryContext(ctx, "SELECT COALESCE(name, '') FROM pragma_index_info(?) ORDER BY seqno", index)
	if err != nil {
		return "", fmt.Errorf("describing index %s: %w", index, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return "", fmt.Errorf("describing index %s: %w", index, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("on %s(%s) unique=%d partial=%d", table, strings.Join(cols, ","), unique, partial), nil
}
