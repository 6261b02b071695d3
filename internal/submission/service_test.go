package submission

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/cache"
	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/notify"
	"github.com/kylejryan/ucehub-portal/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	svc   *Service
	store *testutil.MemStore
	blobs *testutil.MemBlobs
	cards *testutil.RecordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewMemStore()
	blobs := testutil.NewMemBlobs()
	srv := httptest.NewServer(blobs)
	t.Cleanup(srv.Close)
	blobs.BaseURL = srv.URL
	cards := &testutil.RecordingNotifier{}
	svc := New(store, blobs, nil, cards, zap.NewNop(), Options{PublicBaseURL: "https://portal.example"})
	return &harness{svc: svc, store: store, blobs: blobs, cards: cards}
}

func decode(t *testing.T, kind models.Kind, body string) Payload {
	t.Helper()
	p, err := Decode(kind, []byte(body))
	require.NoError(t, err)
	return p
}

var validBodies = map[models.Kind]string{
	models.KindOrder:         `{"userName":"Ana","userEmail":"a@x.com","items":[{"name":"Café","price":1.0,"quantity":2}],"totalPrice":2.0}`,
	models.KindTicket:        `{"userName":"Luis","userEmail":"l@x.com","subject":"WiFi","description":"No conecta"}`,
	models.KindJustification: `{"userName":"Eva","userEmail":"e@x.com","reason":"Cita médica","date":"2026-10-01"}`,
	models.KindCertificate:   `{"tipo":"Matrícula","precio":5}`,
	models.KindReservation:   `{"libroId":"B-12","titulo":"Cien años de soledad"}`,
}

func TestSubmitEveryKindIsReadable(t *testing.T) {
	ctx := context.Background()
	for _, kind := range models.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t)
			ack, err := h.svc.Submit(ctx, decode(t, kind, validBodies[kind]))
			require.NoError(t, err)
			assert.True(t, ack.Success)
			require.NotEmpty(t, ack.ID)
			assert.True(t, strings.HasPrefix(ack.ID, kind.Prefix()+"-"))
			assert.Equal(t, models.InitialStatus(kind), ack.Status)

			rec, err := h.svc.Get(ctx, ack.ID)
			require.NoError(t, err)
			assert.Equal(t, ack.ID, rec.Head().ID)
			assert.Equal(t, kind, rec.Head().Kind)
			assert.NotZero(t, rec.Head().CreatedAt)

			listing, err := h.svc.List(ctx, kind)
			require.NoError(t, err)
			assert.Equal(t, 1, listing.Count)
			assert.Len(t, h.cards.Cards(), 1)
		})
	}
}

func TestSubmitMissingFieldsCreatesNothing(t *testing.T) {
	h := newHarness(t)
	cases := map[models.Kind]string{
		models.KindOrder:         `{"userName":"Ana","userEmail":"a@x.com","items":[]}`,
		models.KindTicket:        `{"userName":"Luis","userEmail":"l@x.com","subject":"  "}`,
		models.KindJustification: `{"userName":"Eva","userEmail":"e@x.com","reason":"x"}`,
		models.KindCertificate:   `{"tipo":"Matrícula"}`,
		models.KindReservation:   `{"titulo":"Rayuela"}`,
	}
	for kind, body := range cases {
		_, err := h.svc.Submit(context.Background(), decode(t, kind, body))
		require.ErrorIs(t, err, ErrValidation, kind)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.NotEmpty(t, ve.Fields)
		assert.Zero(t, h.store.Count(kind), kind)
	}
	assert.Empty(t, h.cards.Cards())
}

func TestValidationMessageNamesFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Submit(context.Background(), decode(t, models.KindTicket, `{}`))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"userName", "userEmail", "subject", "description"}, ve.Fields)
	assert.Equal(t, "Datos incompletos. Se requiere: userName, userEmail, subject, description", ve.Message())
}

func TestDuplicateSubmissionsGetDistinctIDs(t *testing.T) {
	h := newHarness(t)
	body := validBodies[models.KindOrder]
	a, err := h.svc.Submit(context.Background(), decode(t, models.KindOrder, body))
	require.NoError(t, err)
	b, err := h.svc.Submit(context.Background(), decode(t, models.KindOrder, body))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.store.Count(models.KindOrder))
}

func TestMalformedJSON(t *testing.T) {
	_, err := Decode(models.KindOrder, []byte(`{"userName":`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOrderExample(t *testing.T) {
	h := newHarness(t)
	ack, err := h.svc.Submit(context.Background(), decode(t, models.KindOrder,
		`{"items":[{"name":"Café","price":1.0,"quantity":2}],"userName":"Ana","userEmail":"a@x.com","total":2.0}`))
	require.NoError(t, err)
	data := ack.Data.(OrderAck)
	assert.Equal(t, models.StatusPending, data.Status)
	assert.Equal(t, ack.ID, data.OrderID)
	assert.Equal(t, "12:00-13:00", data.EstimatedTime)

	listing, err := h.svc.List(context.Background(), models.KindOrder)
	require.NoError(t, err)
	orders := listing.Data.([]models.Order)
	require.Len(t, orders, 1)
	assert.Equal(t, ack.ID, orders[0].ID)
	assert.Equal(t, 2.0, orders[0].TotalPrice)
	assert.Equal(t, "Efectivo", orders[0].PaymentMethod)
}

func TestOrderTotalPriceWinsOverAlias(t *testing.T) {
	p := decode(t, models.KindOrder, `{"userName":"a","userEmail":"b","items":[{"name":"x"}],"totalPrice":3.5,"total":9}`)
	d := p.draft(Options{}.withDefaults(), time.Now())
	assert.Equal(t, 3.5, d.rec.(*models.Order).TotalPrice)
}

func TestJustificationDates(t *testing.T) {
	p := decode(t, models.KindJustification, `{"userName":"a","userEmail":"b","reason":"r","date":"2026-10-01"}`)
	j := p.draft(Options{}, time.Now()).rec.(*models.Justification)
	assert.Equal(t, "2026-10-01", j.StartDate)
	assert.Equal(t, "2026-10-01", j.EndDate)
	assert.Equal(t, "N/A", j.StudentID)

	p = decode(t, models.KindJustification, `{"userName":"a","userEmail":"b","reason":"r","startDate":"2026-10-01","endDate":"2026-10-03"}`)
	j = p.draft(Options{}, time.Now()).rec.(*models.Justification)
	assert.Equal(t, "2026-10-03", j.EndDate)
}

func TestReservationReturnDate(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	p := decode(t, models.KindReservation, validBodies[models.KindReservation])
	r := p.draft(Options{}.withDefaults(), now).rec.(*models.Reservation)
	assert.Equal(t, "2026-10-01T09:00:00Z", r.FechaReserva)
	assert.Equal(t, "2026-10-15T09:00:00Z", r.FechaDevolucion)
}

func TestAttachmentRoundTrip(t *testing.T) {
	h := newHarness(t)
	doc := []byte("%PDF-1.4 certificado médico")
	body := `{"userName":"Eva","userEmail":"e@x.com","reason":"Cita","date":"2026-10-01",` +
		`"documentName":"../certificado-medico.pdf","documentBase64":"data:application/pdf;base64,` + base64.StdEncoding.EncodeToString(doc) + `"}`

	ack, err := h.svc.Submit(context.Background(), decode(t, models.KindJustification, body))
	require.NoError(t, err)
	data := ack.Data.(JustificationAck)
	require.NotNil(t, data.DocumentURL)

	rec, err := h.svc.Get(context.Background(), ack.ID)
	require.NoError(t, err)
	att := rec.(*models.Justification).Attachment
	require.NotNil(t, att)
	assert.Equal(t, "justifications/"+ack.ID+"/certificado-medico.pdf", att.Key)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, *data.DocumentURL, att.URL)

	res, err := http.Get(att.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	got, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestAttachmentFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.blobs.PutErr = errors.New("s3 unavailable")
	body := `{"userName":"Eva","userEmail":"e@x.com","reason":"Cita","date":"2026-10-01","documentName":"a.pdf","documentBase64":"` +
		base64.StdEncoding.EncodeToString([]byte("pdf")) + `"}`

	ack, err := h.svc.Submit(context.Background(), decode(t, models.KindJustification, body))
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Nil(t, ack.Data.(JustificationAck).DocumentURL)

	rec, err := h.svc.Get(context.Background(), ack.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.(*models.Justification).Attachment)
}

func TestUndecodableAttachmentIsIsolated(t *testing.T) {
	h := newHarness(t)
	body := `{"userName":"Eva","userEmail":"e@x.com","reason":"Cita","date":"2026-10-01","documentName":"a.pdf","documentBase64":"@@@"}`
	ack, err := h.svc.Submit(context.Background(), decode(t, models.KindJustification, body))
	require.NoError(t, err)
	assert.Nil(t, ack.Data.(JustificationAck).DocumentURL)
	assert.Empty(t, h.blobs.Keys())
}

func TestNotificationFailureIsIsolated(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer slow.Close()

	run := func(n Notifier) Ack {
		svc := New(testutil.NewMemStore(), testutil.NewMemBlobs(), nil, n, zap.NewNop(), Options{})
		svc.newID = func(models.Kind) string { return "TICK-FIXED" }
		svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
		ack, err := svc.Submit(context.Background(), decode(t, models.KindTicket, validBodies[models.KindTicket]))
		require.NoError(t, err)
		return ack
	}

	hook := notify.NewWebhook(slow.URL, 50*time.Millisecond, zap.NewNop())
	failing := run(notify.Inline{Sender: hook, Timeout: 50 * time.Millisecond})
	quiet := run(&testutil.RecordingNotifier{})
	assert.Equal(t, quiet, failing)
}

func TestPersistFailureIsDependencyError(t *testing.T) {
	h := newHarness(t)
	h.store.PutErr = errors.New("dynamodb unavailable")
	_, err := h.svc.Submit(context.Background(), decode(t, models.KindOrder, validBodies[models.KindOrder]))
	assert.ErrorIs(t, err, ErrDependency)
	assert.Empty(t, h.cards.Cards())
}

func TestPersistFailureLeavesUploadedDocument(t *testing.T) {
	h := newHarness(t)
	h.store.PutErr = errors.New("dynamodb unavailable")
	body := `{"userName":"Eva","userEmail":"e@x.com","reason":"Cita","date":"2026-10-01",` +
		`"documentName":"receta.pdf","documentBase64":"` + base64.StdEncoding.EncodeToString([]byte("%PDF")) + `"}`

	_, err := h.svc.Submit(context.Background(), decode(t, models.KindJustification, body))
	assert.ErrorIs(t, err, ErrDependency)
	assert.Zero(t, h.store.Count(models.KindJustification))
	// The object is not cleaned up; no record points at it.
	keys := h.blobs.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "justifications/JUST-"), keys[0])
	assert.True(t, strings.HasSuffix(keys[0], "/receta.pdf"), keys[0])
}

func TestSubmittedByFromContext(t *testing.T) {
	h := newHarness(t)
	ctx := WithSubject(context.Background(), "ana@uce.edu.ec")
	ack, err := h.svc.Submit(ctx, decode(t, models.KindTicket, validBodies[models.KindTicket]))
	require.NoError(t, err)
	rec, err := h.svc.Get(context.Background(), ack.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@uce.edu.ec", rec.Head().SubmittedBy)
}

func TestListingOrderNewestFirst(t *testing.T) {
	h := newHarness(t)
	base := time.UnixMilli(1_700_000_000_000)
	offsets := []int{3, 1, 2, 1}
	for _, off := range offsets {
		h.svc.now = func() time.Time { return base.Add(time.Duration(off) * time.Second) }
		_, err := h.svc.Submit(context.Background(), decode(t, models.KindTicket, validBodies[models.KindTicket]))
		require.NoError(t, err)
	}
	listing, err := h.svc.List(context.Background(), models.KindTicket)
	require.NoError(t, err)
	tickets := listing.Data.([]models.Ticket)
	require.Len(t, tickets, len(offsets))
	for i := 1; i < len(tickets); i++ {
		assert.GreaterOrEqual(t, tickets[i-1].CreatedAt, tickets[i].CreatedAt)
	}
}

func TestListUsesCacheAndWritesInvalidate(t *testing.T) {
	h := newHarness(t)
	h.svc.cache = newRedisCache(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, decode(t, models.KindReservation, validBodies[models.KindReservation]))
	require.NoError(t, err)

	first, err := h.svc.List(ctx, models.KindReservation)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, first.Source)
	second, err := h.svc.List(ctx, models.KindReservation)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 1, h.store.Scans)

	_, err = h.svc.Submit(ctx, decode(t, models.KindReservation, validBodies[models.KindReservation]))
	require.NoError(t, err)
	third, err := h.svc.List(ctx, models.KindReservation)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, third.Source)
	assert.Equal(t, 2, third.Count)
}

func TestTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ack, err := h.svc.Submit(ctx, decode(t, models.KindJustification, validBodies[models.KindJustification]))
	require.NoError(t, err)

	head, err := h.svc.Transition(ctx, models.KindJustification, ack.ID, models.Approve)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, head.Status)

	_, err = h.svc.Transition(ctx, models.KindJustification, ack.ID, models.Reject)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.svc.Transition(ctx, models.KindJustification, "JUST-MISSING", models.Approve)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.Transition(ctx, models.KindOrder, "ORD-X", models.Approve)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec, err := h.svc.Get(ctx, ack.ID)
	require.NoError(t, err)
	j := rec.(*models.Justification)
	assert.Equal(t, models.StatusApproved, j.Status)
	assert.NotZero(t, j.ApprovedAt)
	assert.Zero(t, j.RejectedAt)
	assert.Len(t, h.cards.Cards(), 2)
}

func TestResolveTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ack, err := h.svc.Submit(ctx, decode(t, models.KindTicket, validBodies[models.KindTicket]))
	require.NoError(t, err)
	head, err := h.svc.Transition(ctx, models.KindTicket, ack.ID, models.Resolve)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, head.Status)
	_, err = h.svc.Transition(ctx, models.KindTicket, ack.ID, models.Resolve)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	body := `{"tipo":"Matrícula","precio":5,"documentName":"pago.pdf","documentBase64":"` +
		base64.StdEncoding.EncodeToString([]byte("receipt")) + `"}`
	ack, err := h.svc.Submit(ctx, decode(t, models.KindCertificate, body))
	require.NoError(t, err)

	url, ttl, err := h.svc.DocumentLink(ctx, ack.ID, "pago.pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "certificates/"+ack.ID+"/pago.pdf")
	assert.Equal(t, time.Hour, ttl)

	rc, meta, err := h.svc.OpenDocument(ctx, ack.ID, "pago.pdf")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "receipt", string(got))
	assert.Equal(t, int64(7), meta.Size)

	_, _, err = h.svc.OpenDocument(ctx, ack.ID, "otro.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = h.svc.OpenDocument(ctx, "nope", "pago.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newRedisCache(t *testing.T) *cache.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// gatedScanStore holds its first Scan after the snapshot is taken until
// release is closed.
type gatedScanStore struct {
	*testutil.MemStore
	scanned chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedScanStore) Scan(ctx context.Context, kind models.Kind, limit int, out any) error {
	err := g.MemStore.Scan(ctx, kind, limit, out)
	g.once.Do(func() {
		close(g.scanned)
		<-g.release
	})
	return err
}

func TestListScannedBeforeWriteIsNotCached(t *testing.T) {
	h := newHarness(t)
	store := &gatedScanStore{MemStore: h.store, scanned: make(chan struct{}), release: make(chan struct{})}
	h.svc.store = store
	h.svc.cache = newRedisCache(t)
	h.svc.opts.CacheTTL = time.Minute
	ctx := context.Background()

	done := make(chan Listing, 1)
	go func() {
		l, err := h.svc.List(ctx, models.KindTicket)
		assert.NoError(t, err)
		done <- l
	}()

	<-store.scanned
	ack, err := h.svc.Submit(ctx, decode(t, models.KindTicket, validBodies[models.KindTicket]))
	require.NoError(t, err)
	close(store.release)
	assert.Equal(t, 0, (<-done).Count)

	after, err := h.svc.List(ctx, models.KindTicket)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, after.Source)
	require.Equal(t, 1, after.Count)
	assert.Equal(t, ack.ID, after.Data.([]models.Ticket)[0].ID)

	cached, err := h.svc.List(ctx, models.KindTicket)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, cached.Source)
	assert.Equal(t, 1, cached.Count)
}

func TestUploadURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ack, err := h.svc.Submit(ctx, decode(t, models.KindCertificate, validBodies[models.KindCertificate]))
	require.NoError(t, err)

	up, err := h.svc.UploadURL(ctx, ack.ID, "comprobante.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, "certificates/"+ack.ID+"/comprobante.pdf", up.Key)
	assert.Equal(t, "application/pdf", up.ContentType)
	assert.Equal(t, 3600, up.ExpiresIn)
	assert.Equal(t, ack.ID, up.Headers["x-amz-meta-record_id"])

	req, err := http.NewRequest(http.MethodPut, up.URL, strings.NewReader("%PDF upload"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", up.ContentType)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	rec, err := h.svc.Get(ctx, ack.ID)
	require.NoError(t, err)
	att := rec.(*models.Certificate).Attachment
	require.NotNil(t, att)
	assert.Equal(t, up.Key, att.Key)

	res, err = http.Get(att.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	got, _ := io.ReadAll(res.Body)
	assert.Equal(t, "%PDF upload", string(got))

	_, err = h.svc.UploadURL(ctx, "CERT-MISSING", "a.pdf", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.UploadURL(ctx, "ORD-1", "a.pdf", "")
	assert.ErrorIs(t, err, ErrValidation)
}
