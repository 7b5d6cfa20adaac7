// Package store provides persistence adapters.
// Clean Architecture: Adapters implementing ports.EmbeddingCache and ports.ExclusionStore.
package store

import (
	"bytes"
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists corpus embeddings and the exclusion list in one
// SQLite database.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	dataPath string
	model    string
}

// NewSQLiteStore opens (or creates) the store under dataPath. Embeddings are
// keyed per model so switching models never serves stale vectors.
func NewSQLiteStore(dataPath, model string) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "boardsearch.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		dataPath: dataPath,
		model:    model,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS exclusions (
		key TEXT PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached embedding for key, if any.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT vector FROM embeddings WHERE key = ?", s.cacheKey(key)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying embedding: %w", err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decoding embedding: %w", err)
	}
	return vec, true, nil
}

// Put stores an embedding for key, replacing any previous one.
func (s *SQLiteStore) Put(ctx context.Context, key string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := encodeVector(vec)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embeddings (key, dim, vector) VALUES (?, ?, ?)",
		s.cacheKey(key), len(vec), blob,
	)
	if err != nil {
		return fmt.Errorf("inserting embedding: %w", err)
	}
	return nil
}

// Contains reports whether key was excluded.
func (s *SQLiteStore) Contains(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exclusions WHERE key = ?", key).Scan(&n); err != nil {
		return false, fmt.Errorf("querying exclusion: %w", err)
	}
	return n > 0, nil
}

// Add appends keys to the exclusion list. Existing keys are left alone.
func (s *SQLiteStore) Add(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO exclusions (key) VALUES (?)")
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("inserting exclusion: %w", err)
		}
	}

	return tx.Commit()
}

// Keys returns every excluded key in insertion order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT key FROM exclusions ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("querying exclusions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// EmbeddingCount returns the number of cached embeddings.
func (s *SQLiteStore) EmbeddingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) cacheKey(key string) string {
	h := sha1.Sum([]byte(key + "|" + s.model))
	return hex.EncodeToString(h[:])
}

// encodeVector writes a length-prefixed little-endian float32 blob.
func encodeVector(v []float32) ([]byte, error) {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(v)))
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("blob too short")
	}
	length := binary.LittleEndian.Uint32(data[:4])
	need := int(length) * 4
	if len(data) < 4+need {
		return nil, fmt.Errorf("blob truncated")
	}
	vec := make([]float32, int(length))
	if err := binary.Read(bytes.NewReader(data[4:4+need]), binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
