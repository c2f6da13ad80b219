// Package control implements the optional ClientRegistry: a Postgres-backed
// check of whether an inbound connection's declared source name is known,
// grounded on the original ClientManager but trimmed of its dataset/
// dirs_conf multi-tenancy model down to a single clients table, since this
// domain has no per-client directory or dataset configuration to serve.
package control

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS %s (
	name text NOT NULL,
	key_hash text NOT NULL,
	registered_at timestamp NOT NULL,
	PRIMARY KEY (name)
);
`

// ClientRecord is one registered source, as loaded from Postgres.
type ClientRecord struct {
	Name         string    `db:"name"`
	KeyHash      string    `db:"key_hash"`
	RegisteredAt time.Time `db:"registered_at"`
}

// Registry validates inbound source names against a Postgres-backed list of
// known cameras, caching the known set in memory so IsValid (called once per
// accepted frame) never blocks on a round-trip.
type Registry struct {
	db    *sqlx.DB
	table string

	mu    sync.RWMutex
	known map[string]string // name -> key_hash
}

// NewRegistry connects to dsn, ensures the registry table exists, and loads
// the current known-source set into memory.
func NewRegistry(dsn, table string) (*Registry, error) {
	if table == "" {
		table = "clients"
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to registry database: %w", err)
	}
	r := &Registry{db: db, table: table, known: make(map[string]string)}
	if _, err := db.Exec(fmt.Sprintf(schema, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring registry table: %w", err)
	}
	if err := r.reload(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	var rows []ClientRecord
	if err := r.db.Select(&rows, fmt.Sprintf(`SELECT name, key_hash, registered_at FROM %s`, r.table)); err != nil {
		return fmt.Errorf("loading registry rows: %w", err)
	}
	known := make(map[string]string, len(rows))
	for _, rec := range rows {
		known[rec.Name] = rec.KeyHash
	}
	r.mu.Lock()
	r.known = known
	r.mu.Unlock()
	return nil
}

// IsValid reports whether source is a known, registered camera name.
// Matches the Validator interface; no key is checked here since the
// "no authentication" non-goal scopes this to source-name validation only.
func (r *Registry) IsValid(source string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[source]
	return ok
}

// HashKey hashes a raw upload key for storage/comparison, never persisting
// it in plaintext.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Register adds or updates a known source, then refreshes the in-memory set.
func (r *Registry) Register(name, key string) error {
	_, err := r.db.NamedExec(fmt.Sprintf(`
		INSERT INTO %s (name, key_hash, registered_at)
		VALUES (:name, :key_hash, :now)
		ON CONFLICT (name) DO UPDATE SET key_hash = :key_hash
	`, r.table), map[string]interface{}{
		"name":     name,
		"key_hash": HashKey(key),
		"now":      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("registering source %s: %w", name, err)
	}
	return r.reload()
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
