package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no cgo)
)

const schema = `
CREATE TABLE IF NOT EXISTS indexes (name TEXT PRIMARY KEY);

CREATE TABLE IF NOT EXISTS bundles (
    id      TEXT NOT NULL,
    idx     TEXT NOT NULL,
    source  TEXT NOT NULL,
    name    TEXT NOT NULL,
    created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status  TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','chunked','completed')),
    PRIMARY KEY (id, idx),
    FOREIGN KEY (idx) REFERENCES indexes(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS chunks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    idx         TEXT NOT NULL,
    bundle_id   TEXT NOT NULL,
    content     TEXT NOT NULL,
    ref         TEXT NOT NULL,
    chunk_order INTEGER NOT NULL,
    FOREIGN KEY (bundle_id, idx) REFERENCES bundles(id, idx) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_chunks_bundle_order ON chunks(bundle_id, idx, chunk_order);
CREATE INDEX IF NOT EXISTS idx_chunks_bundle ON chunks(bundle_id);
CREATE INDEX IF NOT EXISTS idx_chunks_idx    ON chunks(idx);
`

// sqliteMaxVariableNumber bounds how many "?" placeholders a single
// statement may carry; SQLITE_MAX_VARIABLE_NUMBER defaults to 32766 on
// modern builds, but batching conservatively avoids ever hitting it.
const sqliteMaxVariableNumber = 900

// SQLiteMetadataStore implements MetadataStore over a WAL-mode SQLite
// database.
type SQLiteMetadataStore struct {
	db *sql.DB
}

// NewSQLiteMetadataStore opens (creating if absent) the metadata database at
// path and applies the schema and WAL pragmas.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create metadata dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY races

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteMetadataStore{db: db}, nil
}

func runInTx(ctx context.Context, db *sql.DB, cb CommitCallback, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if cb != nil {
		if err := cb(); err != nil {
			return fmt.Errorf("post-commit callback: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) IndexAdd(ctx context.Context, name string, cb CommitCallback) error {
	return runInTx(ctx, s.db, cb, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO indexes(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("insert index %q: %w", name, err)
		}
		return nil
	})
}

func (s *SQLiteMetadataStore) IndexDel(ctx context.Context, name string, cb CommitCallback) error {
	return runInTx(ctx, s.db, cb, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete index %q: %w", name, err)
		}
		return nil
	})
}

func (s *SQLiteMetadataStore) IndexGet(ctx context.Context, name string) (*Index, error) {
	var got string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM indexes WHERE name = ?`, name).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get index %q: %w", name, err)
	}
	return &Index{Name: got}, nil
}

func (s *SQLiteMetadataStore) IndexList(ctx context.Context, page, items int) ([]*Index, error) {
	q := `SELECT name FROM indexes ORDER BY name`
	args := []any{}
	if items > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, items, page*items)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer rows.Close()

	var out []*Index
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		out = append(out, &Index{Name: name})
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) BundleAdd(ctx context.Context, b *Bundle, cb CommitCallback) error {
	return runInTx(ctx, s.db, cb, func(tx *sql.Tx) error {
		status := b.Status
		if status == "" {
			status = BundleStatusPending
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bundles(id, idx, source, name, status)
			VALUES (?, ?, ?, ?, ?)
		`, b.ID, b.Index, b.Source, b.Name, string(status))
		if err != nil {
			return fmt.Errorf("insert bundle %s/%s: %w", b.Index, b.ID, err)
		}
		return nil
	})
}

func (s *SQLiteMetadataStore) BundleDel(ctx context.Context, id, index string, cb CommitCallback) error {
	return runInTx(ctx, s.db, cb, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE id = ? AND idx = ?`, id, index)
		if err != nil {
			return fmt.Errorf("delete bundle %s/%s: %w", index, id, err)
		}
		return nil
	})
}

func (s *SQLiteMetadataStore) BundleGet(ctx context.Context, id, index string) (*Bundle, error) {
	b := &Bundle{}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idx, source, name, created, status FROM bundles WHERE id = ? AND idx = ?
	`, id, index).Scan(&b.ID, &b.Index, &b.Source, &b.Name, &b.Created, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle %s/%s: %w", index, id, err)
	}
	b.Status = BundleStatus(status)
	return b, nil
}

func (s *SQLiteMetadataStore) BundleList(ctx context.Context, index string, page, items int) ([]*Bundle, error) {
	q := `SELECT id, idx, source, name, created, status FROM bundles WHERE idx = ? ORDER BY created`
	args := []any{index}
	if items > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, items, page*items)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bundles for index %q: %w", index, err)
	}
	defer rows.Close()

	var out []*Bundle
	for rows.Next() {
		b := &Bundle{}
		var status string
		if err := rows.Scan(&b.ID, &b.Index, &b.Source, &b.Name, &b.Created, &status); err != nil {
			return nil, fmt.Errorf("scan bundle row: %w", err)
		}
		b.Status = BundleStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) BundleStatusGet(ctx context.Context, id, index string) (BundleStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM bundles WHERE id = ? AND idx = ?`, id, index).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("get bundle status %s/%s: %w", index, id, err)
	}
	return BundleStatus(status), nil
}

func (s *SQLiteMetadataStore) BundleStatusSet(ctx context.Context, id, index string, status BundleStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bundles SET status = ? WHERE id = ? AND idx = ?`, string(status), id, index)
	if err != nil {
		return fmt.Errorf("set bundle status %s/%s: %w", index, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteMetadataStore) ChunksAdd(ctx context.Context, chunks []*Chunk) ([]*Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]*Chunk, len(chunks))
	err := runInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks(idx, bundle_id, content, ref, chunk_order)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range chunks {
			res, err := stmt.ExecContext(ctx, c.Index, c.BundleID, c.Content, c.Ref, c.ChunkOrder)
			if err != nil {
				return fmt.Errorf("insert chunk %d of bundle %s: %w", c.ChunkOrder, c.BundleID, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("chunk last insert id: %w", err)
			}
			cp := *c
			cp.ID = id
			out[i] = &cp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteMetadataStore) ChunksGet(ctx context.Context, ids []int64) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []*Chunk
	for start := 0; start < len(ids); start += sqliteMaxVariableNumber {
		end := min(start+sqliteMaxVariableNumber, len(ids))
		batch := ids[start:end]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT id, idx, bundle_id, content, ref, chunk_order FROM chunks WHERE id IN (%s)`, placeholders,
		), args...)
		if err != nil {
			return nil, fmt.Errorf("get chunks batch: %w", err)
		}
		for rows.Next() {
			c := &Chunk{}
			if err := rows.Scan(&c.ID, &c.Index, &c.BundleID, &c.Content, &c.Ref, &c.ChunkOrder); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan chunk row: %w", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func (s *SQLiteMetadataStore) ChunksGetByBundleID(ctx context.Context, bundleID, index string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idx, bundle_id, content, ref, chunk_order
		FROM chunks WHERE bundle_id = ? AND idx = ? ORDER BY chunk_order
	`, bundleID, index)
	if err != nil {
		return nil, fmt.Errorf("get chunks for bundle %s/%s: %w", index, bundleID, err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c := &Chunk{}
		if err := rows.Scan(&c.ID, &c.Index, &c.BundleID, &c.Content, &c.Ref, &c.ChunkOrder); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) ChunksGetByIndex(ctx context.Context, index string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idx, bundle_id, content, ref, chunk_order
		FROM chunks WHERE idx = ? ORDER BY bundle_id, chunk_order
	`, index)
	if err != nil {
		return nil, fmt.Errorf("get chunks for index %q: %w", index, err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c := &Chunk{}
		if err := rows.Scan(&c.ID, &c.Index, &c.BundleID, &c.Content, &c.Ref, &c.ChunkOrder); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) ChunksDeleteByBundleID(ctx context.Context, bundleID, index string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE bundle_id = ? AND idx = ?`, bundleID, index)
	if err != nil {
		return fmt.Errorf("delete chunks for bundle %s/%s: %w", index, bundleID, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)
