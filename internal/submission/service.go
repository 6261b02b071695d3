// Package submission runs the portal's request workflow: validate, persist,
// attach, notify and acknowledge. Persistence is the only step whose failure
// reaches the caller.
package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/cache"
	"github.com/kylejryan/ucehub-portal/internal/config"
	"github.com/kylejryan/ucehub-portal/internal/ddb"
	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/notify"
	"github.com/kylejryan/ucehub-portal/internal/s3io"
	"github.com/kylejryan/ucehub-portal/internal/validate"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Store persists records. *ddb.Repo satisfies it.
type Store interface {
	Put(ctx context.Context, kind models.Kind, rec models.Record) error
	Get(ctx context.Context, kind models.Kind, id string, out any) error
	Scan(ctx context.Context, kind models.Kind, limit int, out any) error
	Transition(ctx context.Context, kind models.Kind, id string, t models.Transition, at time.Time, out any) error
	SetAttachment(ctx context.Context, kind models.Kind, id string, a *models.Attachment, at time.Time) error
}

// Blobs stores attachment bytes. *s3io.Store satisfies it.
type Blobs interface {
	Put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string) error
	SignedURL(ctx context.Context, key, fileName, contentType string, ttl time.Duration) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, s3io.ObjectMeta, error)
	UploadURL(ctx context.Context, key, contentType string, meta map[string]string, ttl time.Duration) (string, error)
}

// Cache holds listing results. Implementations never fail the caller.
// Invalidate must make any version read before it stale, so that a listing
// scanned before a write is never stored after it.
type Cache interface {
	Get(ctx context.Context, key string, v any) bool
	Version(ctx context.Context, key string) (string, bool)
	SetIfVersion(ctx context.Context, key string, v any, ttl time.Duration, version string) bool
	Invalidate(ctx context.Context, key string)
}

// Notifier hands a card off for delivery. It must not block on the network
// longer than its own timeout and never reports failure.
type Notifier interface {
	Notify(ctx context.Context, c notify.Card)
}

// Options tunes the workflow.
type Options struct {
	DocumentURLTTL      time.Duration
	PresignTTL          time.Duration
	CacheTTL            time.Duration
	StoreTimeout        time.Duration
	ListLimit           int
	ReservationPeriod   time.Duration
	DefaultDeliveryTime string
	PublicBaseURL       string
}

// OptionsFromEnv copies the workflow settings out of the loaded config.
func OptionsFromEnv(e config.Env) Options {
	return Options{
		DocumentURLTTL:      e.DocumentURLTTL,
		PresignTTL:          e.PresignTTL,
		CacheTTL:            e.CacheTTL,
		StoreTimeout:        e.StoreTimeout,
		ListLimit:           e.ListLimit,
		ReservationPeriod:   e.ReservationPeriod,
		DefaultDeliveryTime: e.DefaultDeliveryTime,
		PublicBaseURL:       e.PublicBaseURL,
	}
}

func (o Options) withDefaults() Options {
	if o.DocumentURLTTL <= 0 {
		o.DocumentURLTTL = 7 * 24 * time.Hour
	}
	if o.PresignTTL <= 0 {
		o.PresignTTL = time.Hour
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.ListLimit <= 0 {
		o.ListLimit = 100
	}
	if o.ReservationPeriod <= 0 {
		o.ReservationPeriod = 14 * 24 * time.Hour
	}
	if o.DefaultDeliveryTime == "" {
		o.DefaultDeliveryTime = "12:00-13:00"
	}
	return o
}

// Service executes submissions and the operations around them.
type Service struct {
	store    Store
	blobs    Blobs
	cache    Cache
	notifier Notifier
	log      *zap.Logger
	opts     Options

	now   func() time.Time
	newID func(models.Kind) string
}

// New wires a Service. A nil cache disables caching.
func New(store Store, blobs Blobs, c Cache, n Notifier, log *zap.Logger, opts Options) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		blobs:    blobs,
		cache:    c,
		notifier: n,
		log:      log,
		opts:     opts.withDefaults(),
		now:      time.Now,
		newID:    NewID,
	}
}

// NewID returns a fresh identifier for kind, e.g. "ORD-01J9Z...".
func NewID(kind models.Kind) string {
	return kind.Prefix() + "-" + ulid.Make().String()
}

// ListKey is the cache key of the listing for kind.
func ListKey(kind models.Kind) string {
	return "ucehub:" + kind.Namespace() + ":list"
}

// Submit validates p, persists it, stores its document if any, notifies
// staff and returns the acknowledgement. Only validation and persistence
// errors are returned.
func (s *Service) Submit(ctx context.Context, p Payload) (Ack, error) {
	kind := p.Kind()
	if missing := p.missing(); len(missing) > 0 {
		return Ack{}, &ValidationError{Kind: kind, Fields: missing}
	}

	// A client that hangs up after validation still gets its record written.
	ctx = context.WithoutCancel(ctx)

	now := s.now()
	d := p.draft(s.opts, now)
	head := d.rec.Head()
	head.Stamp(s.newID(kind), kind, now)
	head.SubmittedBy = SubjectFrom(ctx)
	log := s.log.With(zap.String("kind", string(kind)), zap.String("id", head.ID))

	if d.upload != nil && d.attach != nil {
		a, err := s.storeAttachment(ctx, kind, head.ID, d.upload)
		if err != nil {
			log.Warn("attachment not stored", zap.Error(err))
		} else {
			d.attach(a)
		}
	}

	putCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err := s.store.Put(putCtx, kind, d.rec)
	cancel()
	if err != nil {
		log.Error("persist failed", zap.Error(err))
		return Ack{}, fmt.Errorf("%w: persist %s: %v", ErrDependency, kind, err)
	}
	log.Info("record created", zap.String("status", string(head.Status)))

	s.cache.Invalidate(ctx, ListKey(kind))
	if s.notifier != nil && d.card != nil {
		s.notifier.Notify(ctx, d.card(s.opts))
	}
	return d.ack(), nil
}

// Listing is the result of List.
type Listing struct {
	Data   any    `json:"data"`
	Count  int    `json:"count"`
	Source string `json:"source"`
}

// List sources for listings.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// List returns up to ListLimit records of kind sorted newest first. Past
// ListLimit records the set returned is whatever the store scan reached.
func (s *Service) List(ctx context.Context, kind models.Kind) (Listing, error) {
	switch kind {
	case models.KindOrder:
		return list[models.Order](ctx, s, kind)
	case models.KindTicket:
		return list[models.Ticket](ctx, s, kind)
	case models.KindJustification:
		return list[models.Justification](ctx, s, kind)
	case models.KindCertificate:
		return list[models.Certificate](ctx, s, kind)
	case models.KindReservation:
		return list[models.Reservation](ctx, s, kind)
	}
	return Listing{}, fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
}

func list[T any](ctx context.Context, s *Service, kind models.Kind) (Listing, error) {
	key := ListKey(kind)
	var recs []T
	if s.cache.Get(ctx, key, &recs) {
		return Listing{Data: recs, Count: len(recs), Source: SourceCache}, nil
	}
	// Read before scanning: a write landing during the scan bumps it.
	version, cacheable := s.cache.Version(ctx, key)

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.Scan(ctx, kind, s.opts.ListLimit, &recs); err != nil {
		s.log.Error("list failed", zap.String("kind", string(kind)), zap.Error(err))
		return Listing{}, fmt.Errorf("%w: scan %s: %v", ErrDependency, kind, err)
	}
	if recs == nil {
		recs = []T{}
	}
	if cacheable && !s.cache.SetIfVersion(ctx, key, recs, s.opts.CacheTTL, version) {
		s.log.Debug("listing not cached, invalidated during scan", zap.String("kind", string(kind)))
	}
	return Listing{Data: recs, Count: len(recs), Source: SourceDatabase}, nil
}

// Transition applies t to the record id of kind and returns the updated
// header. A record that is missing yields ErrNotFound; one that is not in a
// source state of t yields ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, kind models.Kind, id string, t models.Transition) (*models.Header, error) {
	if !kind.Allows(t) {
		return nil, fmt.Errorf("%w: %s cannot %s", ErrInvalidTransition, kind, t.Name)
	}
	ctx = context.WithoutCancel(ctx)
	log := s.log.With(zap.String("kind", string(kind)), zap.String("id", id), zap.String("transition", t.Name))

	var out models.Header
	tctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err := s.store.Transition(tctx, kind, id, t, s.now(), &out)
	cancel()
	switch {
	case errors.Is(err, ddb.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case errors.Is(err, ddb.ErrConditionFailed):
		return nil, fmt.Errorf("%w: %s is not %v", ErrInvalidTransition, id, t.From)
	case err != nil:
		log.Error("transition failed", zap.Error(err))
		return nil, fmt.Errorf("%w: transition %s: %v", ErrDependency, id, err)
	}
	log.Info("status changed", zap.String("status", string(out.Status)))

	s.cache.Invalidate(ctx, ListKey(kind))
	if s.notifier != nil {
		s.notifier.Notify(ctx, transitionCard(kind, id, t))
	}
	return &out, nil
}

// DocumentLink returns a fresh presigned link to the stored document
// fileName of record id. The record kind comes from the id prefix.
func (s *Service) DocumentLink(ctx context.Context, id, fileName string) (string, time.Duration, error) {
	key, err := documentKey(id, fileName)
	if err != nil {
		return "", 0, err
	}
	url, err := s.blobs.SignedURL(ctx, key, fileName, s3io.ContentTypeFor(fileName), s.opts.PresignTTL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: sign %s: %v", ErrDependency, key, err)
	}
	return url, s.opts.PresignTTL, nil
}

// OpenDocument streams the stored document fileName of record id.
func (s *Service) OpenDocument(ctx context.Context, id, fileName string) (io.ReadCloser, s3io.ObjectMeta, error) {
	key, err := documentKey(id, fileName)
	if err != nil {
		return nil, s3io.ObjectMeta{}, err
	}
	rc, meta, err := s.blobs.Open(ctx, key)
	if errors.Is(err, s3io.ErrNotFound) {
		return nil, meta, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, meta, fmt.Errorf("%w: open %s: %v", ErrDependency, key, err)
	}
	return rc, meta, nil
}

// Upload is a presigned direct upload of a record's document.
type Upload struct {
	RecordID    string            `json:"recordId"`
	Key         string            `json:"s3Key"`
	URL         string            `json:"uploadUrl"`
	ExpiresIn   int               `json:"expiresIn"`
	ContentType string            `json:"contentType"`
	Headers     map[string]string `json:"uploadHeaders"`
}

// UploadURL points record id's attachment at a new object and returns a
// presigned PUT for it. Only kinds that carry attachments accept uploads.
// The indexer fills in size and etag once the object lands.
func (s *Service) UploadURL(ctx context.Context, id, fileName, contentType string) (Upload, error) {
	kind, ok := models.KindFromID(id)
	if !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if kind != models.KindJustification && kind != models.KindCertificate {
		return Upload{}, &ValidationError{Kind: kind, Fields: []string{"recordId"}}
	}
	ctx = context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	var head models.Header
	if err := s.store.Get(ctx, kind, id, &head); err != nil {
		if errors.Is(err, ddb.ErrNotFound) {
			return Upload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Upload{}, fmt.Errorf("%w: get %s: %v", ErrDependency, id, err)
	}

	name := validate.FileName(fileName)
	if contentType == "" {
		contentType = s3io.ContentTypeFor(name)
	}
	key := s3io.BuildKey(kind, id, name)
	meta := map[string]string{"record_id": id, "kind": string(kind)}

	put, err := s.blobs.UploadURL(ctx, key, contentType, meta, s.opts.PresignTTL)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: presign %s: %v", ErrDependency, key, err)
	}
	get, err := s.blobs.SignedURL(ctx, key, name, contentType, s.opts.DocumentURLTTL)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: sign %s: %v", ErrDependency, key, err)
	}
	now := s.now()
	att := &models.Attachment{
		Key:          key,
		FileName:     name,
		ContentType:  contentType,
		URL:          get,
		URLExpiresAt: now.Add(s.opts.DocumentURLTTL).UnixMilli(),
	}
	if err := s.store.SetAttachment(ctx, kind, id, att, now); err != nil {
		s.log.Error("attachment reference not saved", zap.String("id", id), zap.Error(err))
		return Upload{}, fmt.Errorf("%w: set attachment %s: %v", ErrDependency, id, err)
	}
	s.cache.Invalidate(ctx, ListKey(kind))

	return Upload{
		RecordID:    id,
		Key:         key,
		URL:         put,
		ExpiresIn:   int(s.opts.PresignTTL.Seconds()),
		ContentType: contentType,
		Headers:     s3io.UploadHeaders(contentType, meta),
	}, nil
}

func documentKey(id, fileName string) (string, error) {
	kind, ok := models.KindFromID(id)
	if !ok || strings.TrimSpace(fileName) == "" {
		return "", fmt.Errorf("%w: document %s/%s", ErrNotFound, id, fileName)
	}
	return s3io.BuildKey(kind, id, validate.FileName(fileName)), nil
}

type subjectKey struct{}

// WithSubject records the authenticated caller on ctx.
func WithSubject(ctx context.Context, sub string) context.Context {
	if sub == "" {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFrom returns the caller recorded by WithSubject, or "".
func SubjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}

// Get loads the record id, inferring the kind from its prefix.
func (s *Service) Get(ctx context.Context, id string) (models.Record, error) {
	kind, ok := models.KindFromID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := newRecord(kind)
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	err := s.store.Get(ctx, kind, id, rec)
	if errors.Is(err, ddb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrDependency, id, err)
	}
	return rec, nil
}

func newRecord(kind models.Kind) models.Record {
	switch kind {
	case models.KindOrder:
		return &models.Order{}
	case models.KindTicket:
		return &models.Ticket{}
	case models.KindJustification:
		return &models.Justification{}
	case models.KindCertificate:
		return &models.Certificate{}
	default:
		return &models.Reservation{}
	}
}
