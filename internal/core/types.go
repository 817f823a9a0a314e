package core

import (
	"context"
	"errors"
	"io"

	"github.com/JonMunkholm/sqlview/internal/sqlitedb"
)

// Error kinds. Wrapped errors keep the underlying cause in their message.
var (
	ErrValidation = errors.New("invalid upload")
	ErrTooLarge   = errors.New("file too large")
	ErrOpen       = errors.New("cannot open database")
	ErrTableRead  = errors.New("cannot read table")
	ErrResource   = errors.New("scratch storage failure")
)

// Messages returned for the two validation failures, kept identical to what
// existing clients already display.
const (
	MsgNoFile        = "No file uploaded"
	MsgEmptyFilename = "Empty filename"
)

// Upload is one received file. Body is read once, while the file is
// materialized; the caller closes it.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64 // -1 when streamed without a length
	Body        io.Reader
}

// Result is the introspection of one database.
type Result struct {
	// Tables holds every table that could be read in full, in catalog order.
	Tables []sqlitedb.Table `json:"tables_metadata"`

	// Skipped names the tables that failed to read and were left out.
	Skipped []string `json:"skipped_tables,omitempty"`
}

// Database is the subset of a database handle the pipeline uses.
type Database interface {
	ListTables(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, name string) (sqlitedb.Table, error)
	Close() error
}
