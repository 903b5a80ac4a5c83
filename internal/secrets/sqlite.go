package secrets

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"toolgate/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is a sqlite-backed credential store. Values are sealed with
// the store key before they ever touch the database.
type SQLiteStore struct {
	conn *sql.DB
	key  *Key
}

// OpenSQLite opens (or creates) the store database and runs migrations.
func OpenSQLite(databaseURL string, key *Key) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping secrets database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, err
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run secrets migrations: %w", err)
	}

	return &SQLiteStore{conn: conn, key: key}, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Put seals and upserts one credential. The plaintext slice belongs to
// the caller and is not retained.
func (s *SQLiteStore) Put(ctx context.Context, scope models.SecretScope, ownerID, pluginID, key string, plaintext []byte) error {
	sealed, err := Seal(plaintext, s.key)
	if err != nil {
		return fmt.Errorf("failed to seal secret %s/%s: %w", pluginID, key, err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO secrets (scope, owner_id, plugin_id, key, encrypted_value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope, owner_id, plugin_id, key)
		DO UPDATE SET encrypted_value = excluded.encrypted_value, updated_at = CURRENT_TIMESTAMP`,
		string(scope), nullable(ownerID), pluginID, key, sealed)
	if err != nil {
		return fmt.Errorf("failed to store secret %s/%s: %w", pluginID, key, err)
	}
	return nil
}

// Delete removes one credential; absent rows are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, scope models.SecretScope, ownerID, pluginID, key string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM secrets WHERE scope = ? AND owner_id IS ? AND plugin_id = ? AND key = ?`,
		string(scope), nullable(ownerID), pluginID, key)
	if err != nil {
		return fmt.Errorf("failed to delete secret %s/%s: %w", pluginID, key, err)
	}
	return nil
}

// ResolveSecrets implements Store. User-scoped records win over global
// ones holding the same key.
func (s *SQLiteStore) ResolveSecrets(ctx context.Context, ownerID, pluginID string) ([]models.SecretRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT scope, owner_id, plugin_id, key, encrypted_value
		FROM secrets
		WHERE plugin_id = ?
		  AND (scope = 'global' OR (scope = 'user' AND owner_id = ?))
		ORDER BY scope ASC`, // 'global' first; user rows overwrite below
		pluginID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets for plugin %s: %w", pluginID, err)
	}
	defer rows.Close()

	byKey := make(map[string]models.SecretRecord)
	var order []string
	for rows.Next() {
		var rec models.SecretRecord
		var scope string
		var owner sql.NullString
		if err := rows.Scan(&scope, &owner, &rec.PluginID, &rec.Key, &rec.EncryptedValue); err != nil {
			return nil, fmt.Errorf("failed to scan secret row: %w", err)
		}
		rec.Scope = models.SecretScope(scope)
		rec.OwnerID = owner.String
		if _, seen := byKey[rec.Key]; !seen {
			order = append(order, rec.Key)
		}
		byKey[rec.Key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.SecretRecord, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
