package submission

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/s3io"
	"github.com/kylejryan/ucehub-portal/internal/validate"
)

// upload is a document attached to a submission, as sent by the client.
type upload struct {
	data     string // base64, optionally a data: URL
	fileName string
}

func newUpload(data, fileName string) *upload {
	if strings.TrimSpace(data) == "" || strings.TrimSpace(fileName) == "" {
		return nil
	}
	return &upload{data: data, fileName: fileName}
}

// decodeDocument decodes plain base64 or a base64 data URL, returning the
// bytes and the content type declared by the data URL, if any.
func decodeDocument(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var contentType string
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", errors.New("data url without payload")
		}
		meta, isB64 := strings.CutSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		if !isB64 {
			return nil, "", errors.New("data url is not base64")
		}
		contentType = meta
		s = payload
	}

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	if len(b) == 0 {
		return nil, "", errors.New("empty document")
	}
	return b, contentType, nil
}

// storeAttachment uploads u under the record's namespace and returns the
// reference to persist. Any error leaves the record without an attachment.
func (s *Service) storeAttachment(ctx context.Context, kind models.Kind, id string, u *upload) (*models.Attachment, error) {
	body, contentType, err := decodeDocument(u.data)
	if err != nil {
		return nil, err
	}
	name := validate.FileName(u.fileName)
	if contentType == "" {
		contentType = s3io.ContentTypeFor(name)
	}
	key := s3io.BuildKey(kind, id, name)

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	meta := map[string]string{"record_id": id, "kind": string(kind)}
	if err := s.blobs.Put(ctx, key, body, contentType, meta); err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	url, err := s.blobs.SignedURL(ctx, key, name, contentType, s.opts.DocumentURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", key, err)
	}
	return &models.Attachment{
		Key:          key,
		FileName:     name,
		ContentType:  contentType,
		URL:          url,
		URLExpiresAt: s.now().Add(s.opts.DocumentURLTTL).UnixMilli(),
	}, nil
}
