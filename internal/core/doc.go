// Package core runs the upload-to-introspection pipeline.
//
// It is independent of the HTTP layer: the web handlers and the sqlview CLI
// both drive the same [Service].
//
// # Pipeline
//
// [Service.Inspect] handles one uploaded database:
//
//  1. Acquire a processing slot from the [UploadLimiter]
//  2. Sweep stale request directories from the scratch store
//  3. Allocate a request-scoped scratch file and write the upload to it
//  4. Open the file read-only (see package sqlitedb)
//  5. List catalog tables, then describe each one
//  6. Close the handle and release the scratch file
//
// Steps 4 to 6 are also available on their own through [Service.InspectFile].
//
// # Error Handling
//
// Failures carry one of the sentinel kinds below, tested with errors.Is:
//
//   - [ErrValidation]: the request itself is unusable (no file, empty name)
//   - [ErrTooLarge]: the payload exceeds the configured maximum
//   - [ErrOpen]: the file is not a readable database
//   - [ErrTableRead]: one table could not be read; logged and skipped
//   - [ErrResource]: scratch storage failed (unwritable dir, disk full)
//   - [ErrTooManyUploads]: no processing slot became free in time
//
// A table-level failure never fails the request: the table is left out of
// the result and its name is listed in [Result.Skipped]. Every other kind
// aborts the request. Nothing is retried.
//
// [MapError] turns any of these into a [UserMessage] with a support code.
package core
