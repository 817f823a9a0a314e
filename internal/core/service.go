package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/sqlview/internal/config"
	"github.com/JonMunkholm/sqlview/internal/logging"
	"github.com/JonMunkholm/sqlview/internal/scratch"
	"github.com/JonMunkholm/sqlview/internal/sqlitedb"
)

// OpenFunc opens a database file for introspection.
type OpenFunc func(ctx context.Context, path string, opts sqlitedb.Options) (Database, error)

// OpenSQLite is the default OpenFunc.
func OpenSQLite(ctx context.Context, path string, opts sqlitedb.Options) (Database, error) {
	db, err := sqlitedb.Open(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Service runs the introspection pipeline.
type Service struct {
	store   *scratch.Store
	limiter *UploadLimiter
	open    OpenFunc
	dbOpts  sqlitedb.Options

	maxFileSize int64
	maxAge      time.Duration
	timeout     time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithOpener replaces the database opener.
func WithOpener(open OpenFunc) Option {
	return func(s *Service) { s.open = open }
}

// NewService builds a Service from cfg. store may be nil when only
// InspectFile is used.
func NewService(cfg *config.Config, store *scratch.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		limiter: NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		open:    OpenSQLite,
		dbOpts: sqlitedb.Options{
			BusyTimeout: cfg.SQLite.BusyTimeout,
			QuickCheck:  cfg.SQLite.QuickCheck,
		},
		maxFileSize: int64(cfg.Upload.MaxFileSize),
		maxAge:      cfg.Scratch.MaxAge,
		timeout:     cfg.Upload.Timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inspect materializes one upload in its own scratch directory and
// introspects it. The scratch file is released on every exit path.
func (s *Service) Inspect(ctx context.Context, up Upload) (*Result, error) {
	if up.Body == nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, MsgNoFile)
	}
	if up.Filename == "" {
		return nil, fmt.Errorf("%w: %s", ErrValidation, MsgEmptyFilename)
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: no scratch store configured", ErrResource)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.store.Sweep(ctx, s.maxAge)

	f, err := s.store.Allocate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	defer f.Release(context.WithoutCancel(ctx))

	logger := logging.WithFields(ctx, "scratch_id", f.ID, "filename", up.Filename)

	start := time.Now()
	if _, err := f.Write(up.Body, s.maxFileSize); err != nil {
		if errors.Is(err, scratch.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrTooLarge, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	logger.Info("upload persisted",
		"size", humanize.IBytes(uint64(f.Size())),
		"content_type", up.ContentType,
		"duration_ms", logging.Since(start),
	)

	return s.inspect(ctx, f.Path)
}

// InspectFile introspects a database already on disk. The file is never
// modified.
func (s *Service) InspectFile(ctx context.Context, path string) (*Result, error) {
	return s.inspect(ctx, path)
}

func (s *Service) inspect(ctx context.Context, path string) (*Result, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()

	db, err := s.open(ctx, path, s.dbOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	names, err := db.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	result := &Result{Tables: make([]sqlitedb.Table, 0, len(names))}
	for _, name := range names {
		table, err := db.Describe(ctx, name)
		if err != nil {
			// A deadline or cancellation is not the table's fault.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("table skipped",
				"table", name,
				"error", fmt.Errorf("%w: %w", ErrTableRead, err),
			)
			result.Skipped = append(result.Skipped, name)
			continue
		}
		logger.Debug("table described", "table", name, "columns", len(table.Columns), "rows", len(table.Rows))
		result.Tables = append(result.Tables, table)
	}

	logger.Info("database introspected",
		"tables", len(result.Tables),
		"skipped", len(result.Skipped),
		"duration_ms", logging.Since(start),
	)
	return result, nil
}

// UploadLimiterStatus reports the processing slots in use.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
