// Package sqlitedb opens uploaded SQLite files and reads their catalog and
// table contents.
//
// Every identifier read back from a file's catalog is treated as untrusted
// and quoted with [QuoteIdent] before it is placed in query text. Handles are
// opened with query_only so nothing in this package can change the file, and
// with an in-memory temp store so the engine never needs a temp directory.
package sqlitedb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotDatabase is returned when a file does not start with the SQLite
// header: empty, truncated, encrypted or simply something else.
var ErrNotDatabase = errors.New("file is not a database")

// headerMagic is the first 16 bytes of every SQLite 3 database file.
var headerMagic = []byte("SQLite format 3\x00")

// Options are applied to every handle returned by [Open].
type Options struct {
	// BusyTimeout bounds how long the engine waits on a locked file.
	BusyTimeout time.Duration

	// QuickCheck runs PRAGMA quick_check after opening and fails when the
	// file reports any problem.
	QuickCheck bool
}

// DB is an open, read-only handle on one database file.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens path as a SQLite database. The header is checked before the
// engine sees the file, and the catalog is read once so that corrupt pages
// fail here rather than midway through introspection. The caller must Close
// the returned handle.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	if err := checkHeader(path); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(abs, opts))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A handle serves a single request; one connection keeps the per-connection
	// pragmas in force for every query.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	if opts.QuickCheck {
		if err := quickCheck(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &DB{db: db, path: path}, nil
}

// Close releases the handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the file the handle was opened on.
func (d *DB) Path() string {
	return d.path
}

// uriEscaper escapes the characters that would end or corrupt the path part
// of a SQLite file: URI.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds a file: URI for an absolute path, so a path containing '?' is
// never split into path and pragma parameters.
func dsn(path string, opts Options) string {
	params := []string{
		"_pragma=query_only(1)",
		"_pragma=temp_store(2)",
	}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	return "file:" + uriEscaper.Replace(filepath.ToSlash(path)) + "?" + strings.Join(params, "&")
}

func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open database file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, len(headerMagic))
	n, err := io.ReadFull(f, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: only %d bytes", ErrNotDatabase, n)
		}
		return fmt.Errorf("read database header: %w", err)
	}
	if !bytes.Equal(buf, headerMagic) {
		return fmt.Errorf("%w: bad header", ErrNotDatabase)
	}
	return nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("quick check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("quick check: %s", strings.Join(problems, "; "))
	}
	return nil
}
