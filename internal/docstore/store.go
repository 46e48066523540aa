// Package docstore is the authoritative document store: JSON documents in
// named collections, persisted in SQLite. It implements remote.Backend so the
// edge server can embed it, and internal/docserver exposes it over HTTP.
package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"time"

	"github.com/toollender/toollender/internal/id"
	"github.com/toollender/toollender/internal/remote"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrInvalidName is returned for collection or field names outside
// [A-Za-z_][A-Za-z0-9_]*.
var ErrInvalidName = errors.New("docstore: invalid name")

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a SQLite-backed document store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ remote.Backend = (*Store)(nil)

// Open opens or creates the database at path. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	logger.Info("document store opened", "path", path)
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Query implements remote.Backend.
func (s *Store) Query(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	if err := checkName(collection); err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := []any{collection}
	sb.WriteString(`SELECT id, fields, create_time, update_time FROM documents WHERE collection = ?`)
	for _, f := range q.Where {
		if err := checkName(f.Field); err != nil {
			return nil, err
		}
		if f.Value == nil {
			fmt.Fprintf(&sb, ` AND json_type(fields, '$.%s') = 'null'`, f.Field)
			continue
		}
		fmt.Fprintf(&sb, ` AND json_extract(fields, '$.%s') = ?`, f.Field)
		args = append(args, sqlValue(f.Value))
	}
	sb.WriteString(` ORDER BY `)
	if q.OrderBy != "" {
		if err := checkName(q.OrderBy); err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, `json_extract(fields, '$.%s') %s, `, q.OrderBy, dir)
	}
	sb.WriteString(`create_time, id`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []remote.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Get implements remote.Backend.
func (s *Store) Get(ctx context.Context, collection, docID string) (remote.Document, error) {
	if err := checkName(collection); err != nil {
		return remote.Document{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, create_time, update_time FROM documents WHERE collection = ? AND id = ?`,
		collection, docID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Document{}, remote.ErrNotFound
	}
	if err != nil {
		return remote.Document{}, fmt.Errorf("get %s/%s: %w", collection, docID, err)
	}
	return doc, nil
}

// Set implements remote.Backend. Setting a missing document creates it.
func (s *Store) Set(ctx context.Context, collection, docID string, fields remote.Fields, mode remote.WriteMode) error {
	if err := checkName(collection); err != nil {
		return err
	}
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidName)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.now())
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT fields FROM documents WHERE collection = ? AND id = ?`, collection, docID).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			data, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("marshal fields: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (collection, id, fields, create_time, update_time) VALUES (?, ?, ?, ?, ?)`,
				collection, docID, string(data), now, now)
			return err
		case err != nil:
			return err
		}

		merged := fields
		if mode == remote.Merge {
			var existing remote.Fields
			if err := json.Unmarshal([]byte(raw), &existing); err != nil {
				return fmt.Errorf("decode stored fields: %w", err)
			}
			if existing == nil {
				existing = remote.Fields{}
			}
			maps.Copy(existing, fields)
			merged = existing
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET fields = ?, update_time = ? WHERE collection = ? AND id = ?`,
			string(data), now, collection, docID)
		return err
	})
}

// Add implements remote.Backend.
func (s *Store) Add(ctx context.Context, collection string, fields remote.Fields, uniqueKey string) (string, error) {
	if err := checkName(collection); err != nil {
		return "", err
	}
	docID, err := id.Generate(id.PrefixDocument)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.now())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, fields, create_time, update_time) VALUES (?, ?, ?, ?, ?)`,
			collection, docID, string(data), now, now); err != nil {
			return err
		}
		if uniqueKey == "" {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO unique_keys (collection, key, doc_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			collection, uniqueKey, docID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return remote.ErrConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, remote.ErrConflict) {
			s.logger.Debug("unique key taken", "collection", collection, "key", uniqueKey)
			return "", err
		}
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return docID, nil
}

// Delete implements remote.Backend. Any unique key held by the document is
// released.
func (s *Store) Delete(ctx context.Context, collection, docID string) error {
	if err := checkName(collection); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, docID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, docID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return remote.ErrNotFound
	}
	return nil
}

// Count returns the number of documents in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (remote.Document, error) {
	var (
		doc                  remote.Document
		raw                  string
		createTime, updateAt string
	)
	if err := scanner.Scan(&doc.ID, &raw, &createTime, &updateAt); err != nil {
		return remote.Document{}, err
	}
	if err := json.Unmarshal([]byte(raw), &doc.Fields); err != nil {
		return remote.Document{}, fmt.Errorf("decode fields of %s: %w", doc.ID, err)
	}
	var err error
	if doc.CreateTime, err = parseTime(createTime); err != nil {
		return remote.Document{}, err
	}
	if doc.UpdateTime, err = parseTime(updateAt); err != nil {
		return remote.Document{}, err
	}
	return doc, nil
}

func checkName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// sqlValue converts a filter value to what json_extract returns for it.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// timeLayout has a fixed-width fraction so stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
