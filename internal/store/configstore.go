package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// The config table persists operator overrides for ranking knobs so a
// restart keeps tuning. Values are stored as text with a declared type.

// SetConfigValue writes or replaces an override.
func (s *Store) SetConfigValue(ctx context.Context, key, value, valueType string) error {
	switch valueType {
	case "string":
	case "int":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("config %s: %q is not an int", key, value)
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("config %s: %q is not a float", key, value)
		}
	case "bool":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("config %s: %q is not a bool", key, value)
		}
	default:
		return fmt.Errorf("config %s: unknown value type %q", key, valueType)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value, value_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			value_type = EXCLUDED.value_type,
			updated_at = now()`,
		key, value, valueType)
	return err
}

// GetConfigValue returns the stored value, or ok=false when unset.
func (s *Store) GetConfigValue(ctx context.Context, key string) (value string, valueType string, ok bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT value, value_type FROM config WHERE key = $1`, key).
		Scan(&value, &valueType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return value, valueType, true, nil
}

// AllConfigValues returns every override as key -> value.
func (s *Store) AllConfigValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// DeleteConfigValue removes an override, reverting to the file default.
func (s *Store) DeleteConfigValue(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM config WHERE key = $1`, key)
	return err
}
