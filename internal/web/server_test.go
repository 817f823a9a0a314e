package web

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sqlview/internal/config"
	"github.com/JonMunkholm/sqlview/internal/core"
	"github.com/JonMunkholm/sqlview/internal/scratch"
)

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       time.Minute,
		},
		Scratch: config.ScratchConfig{MaxAge: time.Hour},
		SQLite:  config.SQLiteConfig{BusyTimeout: time.Second},
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *scratch.Store) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := scratch.New(t.TempDir(), false)
	srv := NewServer(core.NewService(cfg, store), cfg)
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })
	return srv, store
}

// fixture builds a SQLite database from stmts and returns its bytes.
func fixture(t *testing.T, stmts ...string) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.sqlite3")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// fileRequest builds a multipart POST /upload with data under field.
func fileRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

type tableJSON struct {
	Name    string      `json:"name"`
	Columns []string    `json:"columns"`
	Types   []string    `json:"types"`
	Data    [][]*string `json:"data"`
}

func decodeTables(t *testing.T, rec *httptest.ResponseRecorder) []tableJSON {
	t.Helper()
	var body struct {
		Tables []tableJSON `json:"tables_metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Tables
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func str(s string) *string { return &s }

func TestUpload(t *testing.T) {
	srv, store := newTestServer(t, nil)
	data := fixture(t,
		"CREATE TABLE T (id INTEGER, name TEXT)",
		"INSERT INTO T VALUES (1, 'a'), (2, NULL)",
	)

	rec := serve(srv, fileRequest(t, "file", "t.db", data))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	tables := decodeTables(t, rec)
	require.Len(t, tables, 1)
	assert.Equal(t, "T", tables[0].Name)
	assert.Equal(t, []string{"id", "name"}, tables[0].Columns)
	assert.Equal(t, []string{"INTEGER", "TEXT"}, tables[0].Types)
	assert.Equal(t, [][]*string{{str("1"), str("a")}, {str("2"), nil}}, tables[0].Data)

	// NULL is a JSON null, not a string.
	assert.Contains(t, rec.Body.String(), `["2",null]`)

	entries, err := os.ReadDir(store.Root())
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestUpload_EmptyTableHasEmptyData(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := serve(srv, fileRequest(t, "file", "t.db", fixture(t, "CREATE TABLE empty (a, b)")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestUpload_BlankTableNamesOmitted(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	data := fixture(t,
		`CREATE TABLE " " (a)`,
		"CREATE TABLE real_one (b)",
	)

	rec := serve(srv, fileRequest(t, "file", "t.db", data))
	require.Equal(t, http.StatusOK, rec.Code)

	tables := decodeTables(t, rec)
	require.Len(t, tables, 1)
	assert.Equal(t, "real_one", tables[0].Name)
}

func TestUpload_Validation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	fieldOnly := func() *http.Request {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("file", "not a file"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req
	}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{
			name: "not multipart",
			req:  httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("hello")),
			want: core.MsgNoFile,
		},
		{
			name: "wrong field",
			req:  fileRequest(t, "upload", "t.db", []byte("x")),
			want: core.MsgNoFile,
		},
		{
			name: "field without filename",
			req:  fieldOnly(),
			want: core.MsgNoFile,
		},
		{
			name: "empty filename",
			req:  fileRequest(t, "file", "", []byte("x")),
			want: core.MsgEmptyFilename,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, tt.req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, map[string]string{"error": tt.want}, decodeError(t, rec))
		})
	}
}

func TestUpload_NotADatabase(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := serve(srv, fileRequest(t, "file", "notes.txt", []byte("id,name\n1,a\n")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeError(t, rec)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["details"])
	assert.Equal(t, "FILE002", body["code"])
}

func TestUpload_TooLarge(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Upload.MaxFileSize = 1024
	})

	rec := serve(srv, fileRequest(t, "file", "big.db", make([]byte, 8192)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "FILE001", body["code"])
	assert.NotEmpty(t, body["details"])
}

func TestUpload_Busy(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Upload.MaxConcurrent = 1
	})

	// The first upload holds the only slot while its body is still arriving.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	slow := httptest.NewRequest(http.MethodPost, "/upload", pr)
	slow.Header.Set("Content-Type", mw.FormDataContentType())

	done := make(chan int)
	go func() {
		done <- serve(srv, slow).Code
	}()
	go func() {
		fw, err := mw.CreateFormFile("file", "slow.db")
		if err == nil {
			_, _ = fw.Write([]byte("SQLite format 3"))
		}
	}()

	require.Eventually(t, func() bool {
		return srv.service.UploadLimiterStatus().Active == 1
	}, 5*time.Second, 5*time.Millisecond)

	rec := serve(srv, fileRequest(t, "file", "t.db", fixture(t, "CREATE TABLE t (a)")))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "UPL001", decodeError(t, rec)["code"])

	pw.CloseWithError(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, <-done)
}

func TestUpload_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	})
	data := fixture(t, "CREATE TABLE t (a)")

	assert.Equal(t, http.StatusOK, serve(srv, fileRequest(t, "file", "t.db", data)).Code)

	rec := serve(srv, fileRequest(t, "file", "t.db", data))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health checks are never limited.
	assert.Equal(t, http.StatusOK, serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestHealthAndStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":0,"available":2,"max_concurrent":2}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(srv, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(srv, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want slog.Level
	}{
		{"too large", fmt.Errorf("%w: big", core.ErrTooLarge), slog.LevelWarn},
		{"body cap", fmt.Errorf("%w: %w", core.ErrResource, &http.MaxBytesError{Limit: 10}), slog.LevelWarn},
		{"busy", core.ErrTooManyUploads, slog.LevelWarn},
		{"not a database", fmt.Errorf("%w: bad header", core.ErrOpen), slog.LevelError},
		{"disk", fmt.Errorf("%w: disk full", core.ErrResource), slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.err, statusFor(tt.err)))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrValidation, http.StatusBadRequest},
		{core.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{core.ErrOpen, http.StatusInternalServerError},
		{core.ErrResource, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
