package httpx

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "invalid json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"message":"invalid json","error":"invalid json"}`, rec.Body.String())
}

func TestLambdaHandlerRoundTrip(t *testing.T) {
	var seen *http.Request
	var seenBody string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
		http.SetCookie(w, &http.Cookie{Name: "s", Value: "1"})
		JSON(w, http.StatusCreated, map[string]bool{"success": true})
	})

	ev := events.APIGatewayV2HTTPRequest{
		RawPath:         "/api/cafeteria/order",
		RawQueryString:  "a=1",
		Headers:         map[string]string{"content-type": "application/json", "authorization": "Bearer x"},
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"userName":"Ana"}`)),
		IsBase64Encoded: true,
	}
	ev.RequestContext.HTTP.Method = http.MethodPost
	ev.RequestContext.HTTP.SourceIP = "10.0.0.1"

	res, err := LambdaHandler(h)(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.False(t, res.IsBase64Encoded)
	assert.JSONEq(t, `{"success":true}`, res.Body)
	assert.Equal(t, []string{"s=1"}, res.Cookies)

	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/api/cafeteria/order", seen.URL.Path)
	assert.Equal(t, "1", seen.URL.Query().Get("a"))
	assert.Equal(t, "Bearer x", seen.Header.Get("Authorization"))
	assert.Equal(t, `{"userName":"Ana"}`, seenBody)
}

func TestLambdaHandlerBinaryBody(t *testing.T) {
	pdf := []byte{0x25, 0x50, 0x44, 0x46, 0xff, 0xfe}
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})
	ev := events.APIGatewayV2HTTPRequest{RawPath: "/documents/download/JUST-1/a.pdf"}
	ev.RequestContext.HTTP.Method = http.MethodGet

	res, err := LambdaHandler(h)(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, res.IsBase64Encoded)
	got, err := base64.StdEncoding.DecodeString(res.Body)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)
}
