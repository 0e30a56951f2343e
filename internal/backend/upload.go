package backend

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
)

// FileField is the multipart field name the processing service reads.
const FileField = "file"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeUpload turns an uploaded file into a multipart/form-data body with a
// single FileField part. The original filename and bytes are preserved. The
// body is produced on the fly through a pipe, so the size of the upload is
// not bounded here; callers must Close the returned body.
func EncodeUpload(u *domain.Upload) (io.ReadCloser, http.Header, error) {
	if u == nil || u.Content == nil {
		return nil, nil, domain.ErrMissingFile
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	header := make(http.Header)
	header.Set("Content-Type", mw.FormDataContentType())

	go func() {
		part, err := mw.CreatePart(partHeader(u.Filename))
		if err != nil {
			pw.CloseWithError(fmt.Errorf("create form part: %w", err))
			return
		}
		if _, err := io.Copy(part, u.Content); err != nil {
			pw.CloseWithError(fmt.Errorf("copy upload: %w", err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, header, nil
}

func partHeader(filename string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, quoteEscaper.Replace(filename)))

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}
