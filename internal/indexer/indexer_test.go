package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/ddb"
	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/s3io"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeObjects struct {
	meta map[string]s3io.ObjectMeta
}

func (f *fakeObjects) Head(_ context.Context, key string) (s3io.ObjectMeta, error) {
	m, ok := f.meta[key]
	if !ok {
		return s3io.ObjectMeta{}, s3io.ErrNotFound
	}
	return m, nil
}

type metaCall struct {
	kind       models.Kind
	id         string
	size       int64
	etag       string
	uploadedAt string
}

type fakeRecords struct {
	calls []metaCall
	err   error
}

func (f *fakeRecords) SetAttachmentMeta(_ context.Context, kind models.Kind, id string, size int64, etag, uploadedAt string) error {
	f.calls = append(f.calls, metaCall{kind, id, size, etag, uploadedAt})
	return f.err
}

func newIndexer(objs *fakeObjects, recs *fakeRecords) (*Indexer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return &Indexer{
		Objects: objs,
		Records: recs,
		Log:     zap.New(core),
		Now:     func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) },
	}, logs
}

func event(keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		var r events.S3EventRecord
		r.S3.Object.Key = k
		ev.Records = append(ev.Records, r)
	}
	return ev
}

func TestHandleRecordsMetadata(t *testing.T) {
	objs := &fakeObjects{meta: map[string]s3io.ObjectMeta{
		"justifications/JUST-1/cert médico.pdf": {Size: 2048, ETag: "abc", ContentType: "application/pdf"},
	}}
	recs := &fakeRecords{}
	ix, _ := newIndexer(objs, recs)

	require.NoError(t, ix.Handle(context.Background(), event("justifications/JUST-1/cert+m%C3%A9dico.pdf")))
	require.Len(t, recs.calls, 1)
	assert.Equal(t, metaCall{models.KindJustification, "JUST-1", 2048, "abc", "2026-10-01T12:00:00Z"}, recs.calls[0])
}

func TestMetadataRecordIDWins(t *testing.T) {
	objs := &fakeObjects{meta: map[string]s3io.ObjectMeta{
		"certificates/CERT-path/a.pdf": {Size: 1, Meta: map[string]string{"record_id": "CERT-meta"}},
	}}
	recs := &fakeRecords{}
	ix, _ := newIndexer(objs, recs)
	require.NoError(t, ix.Process(context.Background(), "certificates/CERT-path/a.pdf"))
	require.Len(t, recs.calls, 1)
	assert.Equal(t, "CERT-meta", recs.calls[0].id)
}

func TestSkipsUnknownKeysAndMissingRecords(t *testing.T) {
	objs := &fakeObjects{meta: map[string]s3io.ObjectMeta{"tickets/TICK-1/a.pdf": {Size: 1}}}
	recs := &fakeRecords{err: ddb.ErrConditionFailed}
	ix, logs := newIndexer(objs, recs)

	require.NoError(t, ix.Process(context.Background(), "user/abc/claim.txt"))
	require.NoError(t, ix.Process(context.Background(), "tickets/TICK-1/a.pdf"))
	assert.Equal(t, 1, logs.FilterMessage("skipping unrecognized key").Len())
	assert.Equal(t, 1, logs.FilterMessage("no attachment reference for object").Len())
}

func TestHandleNeverFailsBatch(t *testing.T) {
	recs := &fakeRecords{err: errors.New("throttled")}
	objs := &fakeObjects{meta: map[string]s3io.ObjectMeta{"justifications/JUST-2/a.pdf": {Size: 1}}}
	ix, logs := newIndexer(objs, recs)

	err := ix.Handle(context.Background(), event("justifications/JUST-1/missing.pdf", "justifications/JUST-2/a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 2, logs.FilterMessage("index failed").Len())
}
