package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ResolveLatestImportDBName returns the most recently imported database
// whose name contains city, from public.latest_successful_imports on the
// cluster's meta database.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", errors.New("city is required")
	}

	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no database found for city like %q", city)
		}
		return "", err
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return name.String, nil
}

// Connect opens the GTFS database. With a city, the newest import for that
// city is looked up on the cluster's "postgres" database first and the DSN is
// pointed at it. It returns the database name actually used.
func Connect(ctx context.Context, dsn, city string) (*sql.DB, string, error) {
	if city != "" {
		metaDSN, err := WithDBName(dsn, "postgres")
		if err != nil {
			return nil, "", fmt.Errorf("invalid base DSN: %w", err)
		}
		meta, err := Open(metaDSN)
		if err != nil {
			return nil, "", fmt.Errorf("open meta db: %w", err)
		}
		defer meta.Close()

		name, err := ResolveLatestImportDBName(ctx, meta, city)
		if err != nil {
			return nil, "", fmt.Errorf("resolve latest import for city %q: %w", city, err)
		}
		if dsn, err = WithDBName(dsn, name); err != nil {
			return nil, "", fmt.Errorf("compose DSN: %w", err)
		}
	}

	conn, err := Open(dsn)
	if err != nil {
		return nil, "", err
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}
	return conn, DBName(dsn), nil
}
