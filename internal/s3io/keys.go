package s3io

import (
	"mime"
	"path"
	"strings"

	"github.com/kylejryan/ucehub-portal/internal/models"
)

// Common content types.
const (
	ContentTypePDF    = "application/pdf"
	ContentTypeBinary = "application/octet-stream"
)

// BuildKey constructs the object key for a record's attachment:
// <namespace>/<id>/<fileName>, e.g. justifications/JUST-01H.../cert.pdf.
func BuildKey(kind models.Kind, id, fileName string) string {
	return kind.Namespace() + "/" + id + "/" + fileName
}

// ParseKey extracts kind, record id and file name from an attachment key.
func ParseKey(key string) (kind models.Kind, id, fileName string, ok bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" || strings.Contains(parts[2], "/") {
		return "", "", "", false
	}
	kind, ok = models.KindFromNamespace(parts[0])
	if !ok {
		return "", "", "", false
	}
	return kind, parts[1], parts[2], true
}

// ContentTypeFor guesses a content type from the file extension, falling
// back to PDF, which is what the portal's upload forms send.
func ContentTypeFor(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	switch ext {
	case "":
		return ContentTypePDF
	case ".pdf":
		return ContentTypePDF
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return ContentTypeBinary
}

// InlineDisposition is the Content-Disposition used for viewing in-browser.
func InlineDisposition(fileName string) string {
	return `inline; filename="` + fileName + `"`
}

// AttachmentDisposition is the Content-Disposition used for downloads.
func AttachmentDisposition(fileName string) string {
	return `attachment; filename="` + fileName + `"`
}

// UploadHeaders lists the headers a client must send on a presigned PUT so
// that the request matches what was signed.
func UploadHeaders(contentType string, meta map[string]string) map[string]string {
	h := map[string]string{
		"Content-Type":                 contentType,
		"x-amz-server-side-encryption": "aws:kms",
	}
	for k, v := range meta {
		h["x-amz-meta-"+k] = v
	}
	return h
}
