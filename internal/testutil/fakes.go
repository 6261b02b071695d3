// Package testutil provides in-memory stand-ins for the portal's backing
// services.
package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/ddb"
	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/notify"
	"github.com/kylejryan/ucehub-portal/internal/s3io"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// MemStore keeps records as DynamoDB attribute maps so that marshalling
// behaves as it does against the real tables.
type MemStore struct {
	mu    sync.Mutex
	items map[models.Kind]map[string]item

	PutErr  error
	ScanErr error
	Scans   int
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{items: map[models.Kind]map[string]item{}}
}

// Put inserts rec, failing with ddb.ErrConditionFailed on a duplicate id.
func (m *MemStore) Put(_ context.Context, kind models.Kind, rec models.Record) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[kind] == nil {
		m.items[kind] = map[string]item{}
	}
	id := rec.Head().ID
	if _, ok := m.items[kind][id]; ok {
		return ddb.ErrConditionFailed
	}
	m.items[kind][id] = av
	return nil
}

// Get loads id into out.
func (m *MemStore) Get(_ context.Context, kind models.Kind, id string, out any) error {
	m.mu.Lock()
	av, ok := m.items[kind][id]
	m.mu.Unlock()
	if !ok {
		return ddb.ErrNotFound
	}
	return attributevalue.UnmarshalMap(av, out)
}

// Scan returns up to limit records newest first.
func (m *MemStore) Scan(_ context.Context, kind models.Kind, limit int, out any) error {
	if m.ScanErr != nil {
		return m.ScanErr
	}
	m.mu.Lock()
	m.Scans++
	all := make([]item, 0, len(m.items[kind]))
	for _, av := range m.items[kind] {
		all = append(all, av)
	}
	m.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool { return number(all[i]["createdAt"]) > number(all[j]["createdAt"]) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return attributevalue.UnmarshalListOfMaps(all, out)
}

// Transition applies t when the stored status is one of t.From.
func (m *MemStore) Transition(_ context.Context, kind models.Kind, id string, t models.Transition, at time.Time, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	av, ok := m.items[kind][id]
	if !ok {
		return ddb.ErrNotFound
	}
	var h models.Header
	if err := attributevalue.UnmarshalMap(av, &h); err != nil {
		return err
	}
	allowed := false
	for _, s := range t.From {
		allowed = allowed || h.Status == s
	}
	if !allowed {
		return ddb.ErrConditionFailed
	}
	ms := at.UnixMilli()
	av["status"] = &types.AttributeValueMemberS{Value: string(t.To)}
	av["updatedAt"] = millis(ms)
	if t.Stamp != "" {
		av[t.Stamp] = millis(ms)
	}
	return attributevalue.UnmarshalMap(av, out)
}

// SetAttachment replaces the attachment of an existing record.
func (m *MemStore) SetAttachment(_ context.Context, kind models.Kind, id string, a *models.Attachment, at time.Time) error {
	av, err := attributevalue.Marshal(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[kind][id]
	if !ok {
		return ddb.ErrNotFound
	}
	it["attachment"] = av
	it["updatedAt"] = millis(at.UnixMilli())
	return nil
}

// Count reports how many records of kind are stored.
func (m *MemStore) Count(kind models.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items[kind])
}

func millis(ms int64) types.AttributeValue {
	av, _ := attributevalue.Marshal(ms)
	return av
}

func number(av types.AttributeValue) int64 {
	var n int64
	_ = attributevalue.Unmarshal(av, &n)
	return n
}

// MemBlobs is an object store whose signed URLs are served by its own
// ServeHTTP. Mount it on an httptest.Server and set BaseURL.
type MemBlobs struct {
	mu      sync.Mutex
	objects map[string]blob

	BaseURL string
	PutErr  error
	SignErr error
}

type blob struct {
	body        []byte
	contentType string
	meta        map[string]string
}

// NewMemBlobs returns an empty blob store.
func NewMemBlobs() *MemBlobs {
	return &MemBlobs{objects: map[string]blob{}}
}

func (b *MemBlobs) Put(_ context.Context, key string, body []byte, contentType string, meta map[string]string) error {
	if b.PutErr != nil {
		return b.PutErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = blob{body: bytes.Clone(body), contentType: contentType, meta: meta}
	return nil
}

func (b *MemBlobs) SignedURL(_ context.Context, key, _, _ string, ttl time.Duration) (string, error) {
	if b.SignErr != nil {
		return "", b.SignErr
	}
	return b.BaseURL + "/" + key + "?X-Amz-Expires=" + ttl.String(), nil
}

func (b *MemBlobs) Open(_ context.Context, key string) (io.ReadCloser, s3io.ObjectMeta, error) {
	b.mu.Lock()
	obj, ok := b.objects[key]
	b.mu.Unlock()
	if !ok {
		return nil, s3io.ObjectMeta{}, s3io.ErrNotFound
	}
	meta := s3io.ObjectMeta{Size: int64(len(obj.body)), ContentType: obj.contentType, Meta: obj.meta}
	return io.NopCloser(bytes.NewReader(obj.body)), meta, nil
}

func (b *MemBlobs) UploadURL(_ context.Context, key, _ string, _ map[string]string, ttl time.Duration) (string, error) {
	if b.SignErr != nil {
		return "", b.SignErr
	}
	return b.BaseURL + "/" + key + "?X-Amz-Method=PUT&X-Amz-Expires=" + ttl.String(), nil
}

// Keys lists stored object keys.
func (b *MemBlobs) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ServeHTTP answers GETs on signed URLs with the stored bytes and stores the
// body of PUTs.
func (b *MemBlobs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = b.Put(r.Context(), strings.TrimPrefix(r.URL.Path, "/"), body, r.Header.Get("Content-Type"), nil)
		return
	}
	b.mu.Lock()
	obj, ok := b.objects[strings.TrimPrefix(r.URL.Path, "/")]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	_, _ = w.Write(obj.body)
}

// RecordingNotifier keeps every card it is given.
type RecordingNotifier struct {
	mu    sync.Mutex
	cards []notify.Card
}

func (n *RecordingNotifier) Notify(_ context.Context, c notify.Card) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cards = append(n.cards, c)
}

// Cards returns a copy of the recorded cards.
func (n *RecordingNotifier) Cards() []notify.Card {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Card(nil), n.cards...)
}
