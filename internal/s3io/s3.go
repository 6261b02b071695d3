// Package s3io stores attachments in S3 and produces presigned links to them.
package s3io

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned when the object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectAPI is the subset of the S3 client used for object I/O.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectMeta holds S3 object metadata and user-defined metadata.
type ObjectMeta struct {
	Size        int64
	ETag        string
	ContentType string
	Meta        map[string]string // lowercased user metadata
}

// Store is a bucket-scoped attachment store.
type Store struct {
	Objects ObjectAPI
	Presign Presigner
	Bucket  string
}

// Put uploads body under key. The last write to a key wins.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string) error {
	_, err := s.Objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.Bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentLength:        aws.Int64(int64(len(body))),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	})
	return err
}

// SignedURL generates a presigned GET URL for key, valid for ttl, that asks
// the browser to display the object inline under fileName.
func (s *Store) SignedURL(ctx context.Context, key, fileName, contentType string, ttl time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket:                     aws.String(s.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(InlineDisposition(fileName)),
	}
	if contentType != "" {
		input.ResponseContentType = aws.String(contentType)
	}
	req, err := s.Presign.PresignGetObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// UploadURL presigns a PUT of key valid for ttl. The client must send the
// headers returned by UploadHeaders with the same arguments.
func (s *Store) UploadURL(ctx context.Context, key, contentType string, meta map[string]string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.Bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	}
	req, err := s.Presign.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Open streams the object at key. The caller closes the reader.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	out, err := s.Objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectMeta{}, mapNotFound(err)
	}
	return out.Body, objectMeta(out.ContentLength, out.ETag, out.ContentType, out.Metadata), nil
}

// Head fetches object metadata including user-defined metadata.
func (s *Store) Head(ctx context.Context, key string) (ObjectMeta, error) {
	out, err := s.Objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectMeta{}, mapNotFound(err)
	}
	return objectMeta(out.ContentLength, out.ETag, out.ContentType, out.Metadata), nil
}

func objectMeta(size *int64, etag, contentType *string, meta map[string]string) ObjectMeta {
	m := ObjectMeta{
		Size:        aws.ToInt64(size),
		ETag:        strings.Trim(aws.ToString(etag), "\""),
		ContentType: strings.ToLower(aws.ToString(contentType)),
		Meta:        make(map[string]string, len(meta)),
	}
	for k, v := range meta {
		m.Meta[strings.ToLower(k)] = v
	}
	return m
}

func mapNotFound(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return ErrNotFound
	}
	return err
}
