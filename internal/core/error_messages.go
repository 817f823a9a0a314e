package core

// error_messages.go maps pipeline errors to user-facing messages with codes
// for support reference. The technical error is still returned to clients as
// "details" and logged with the request id, so a quoted code plus request id
// is enough to find the original failure.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - No file uploaded
//	VAL002 - Empty filename
//	VAL003 - Malformed upload request
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Not a SQLite database (wrong header, empty, encrypted)
//	FILE003 - Database is corrupt (malformed disk image)
//	FILE004 - Database could not be opened
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: too many uploads in progress
//	UPL002 - Request timed out
//	UPL003 - Request cancelled
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Disk full
//	STO002 - Scratch storage unavailable
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Sentinel kinds are matched first with errors.Is, most specific first. When
// none matches, the error text is matched case-insensitively against
// patterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sqlview/internal/sqlitedb"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgNoFile = UserMessage{
		Message: MsgNoFile,
		Action:  "Attach a SQLite database in the \"file\" form field",
		Code:    "VAL001",
	}
	msgEmptyFilename = UserMessage{
		Message: MsgEmptyFilename,
		Action:  "Select a file before uploading",
		Code:    "VAL002",
	}
	msgBadRequest = UserMessage{
		Message: "Malformed upload request",
		Action:  "Send the file as multipart/form-data",
		Code:    "VAL003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Upload a smaller database or vacuum it first",
		Code:    "FILE001",
	}
	msgNotDatabase = UserMessage{
		Message: "The uploaded file is not a SQLite database",
		Action:  "Upload an unencrypted SQLite 3 database file",
		Code:    "FILE002",
	}
	msgCorrupt = UserMessage{
		Message: "The database file is corrupt",
		Action:  "Run an integrity check on the file or upload a fresh copy",
		Code:    "FILE003",
	}
	msgOpen = UserMessage{
		Message: "The database could not be opened",
		Action:  "Check that the file is a complete SQLite database",
		Code:    "FILE004",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller database or try again later",
		Code:    "UPL002",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL003",
	}
	msgDiskFull = UserMessage{
		Message: "Server storage is full",
		Action:  "Please try again later or contact support",
		Code:    "STO001",
	}
	msgStorage = UserMessage{
		Message: "Server could not store the upload",
		Action:  "Please try again later or contact support",
		Code:    "STO002",
	}
	msgRateLimited = UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
)

// errorKinds is checked in order; the first sentinel found in the chain wins.
var errorKinds = []struct {
	target error
	msg    UserMessage
}{
	{ErrTooLarge, msgTooLarge},
	{ErrTooManyUploads, msgBusy},
	{context.DeadlineExceeded, msgTimeout},
	{context.Canceled, msgCancelled},
	{sqlitedb.ErrNotDatabase, msgNotDatabase},
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"no file uploaded", msgNoFile},
	{"empty filename", msgEmptyFilename},
	{"multipart", msgBadRequest},
	{"no space left on device", msgDiskFull},
	{"disk is full", msgDiskFull},
	{"malformed", msgCorrupt},
	{"file is not a database", msgNotDatabase},
	{"file is encrypted", msgNotDatabase},
	{"rate limit", msgRateLimited},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	switch {
	case errors.Is(err, ErrOpen):
		return msgOpen
	case errors.Is(err, ErrResource):
		return msgStorage
	}
	return defaultMessage
}

// FormatUserError formats an error for display as a single line.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsClientError reports whether err was caused by the request rather than by
// the file or the server: validation failures and oversized payloads.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrTooLarge)
}
