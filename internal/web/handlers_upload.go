package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/sqlview/internal/core"
)

// uploadField is the multipart field that carries the database.
const uploadField = "file"

// handleUpload streams the "file" part of a multipart body straight into the
// inspection pipeline; the part is never buffered in memory or spooled to a
// temp file outside the scratch store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Upload.MaxFileSize))

	part, err := filePart(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer part.Close()

	result, err := s.service.Inspect(r.Context(), core.Upload{
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Size:        -1,
		Body:        part,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// filePart advances the multipart reader to the upload field. A field sent
// without a filename parameter is a form value, not a file, and counts as no
// upload; a filename parameter that is present but empty is an empty
// filename.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("%w: %s", core.ErrValidation, core.MsgNoFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: malformed multipart body: %w", core.ErrValidation, err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %s", core.ErrValidation, core.MsgNoFile)
		}
		if err != nil {
			if isBodyTooLarge(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: malformed multipart body: %w", core.ErrValidation, err)
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		hasName, empty := filenameParam(part)
		switch {
		case !hasName:
			part.Close()
			return nil, fmt.Errorf("%w: %s", core.ErrValidation, core.MsgNoFile)
		case empty:
			part.Close()
			return nil, fmt.Errorf("%w: %s", core.ErrValidation, core.MsgEmptyFilename)
		}
		return part, nil
	}
}

// filenameParam reports whether the part's Content-Disposition carries a
// filename parameter and whether that parameter is empty.
func filenameParam(part *multipart.Part) (present, empty bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false, false
	}
	name, ok := params["filename"]
	return ok, ok && name == ""
}
