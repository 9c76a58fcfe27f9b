package dispatcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerFor(srv *httptest.Server, name, key string) *HTTPProvider {
	return NewHTTPProvider(config.ProviderConfig{
		Name:      name,
		Enabled:   true,
		BaseURL:   srv.URL + "/",
		APIKey:    key,
		TimeoutMs: 2000,
		Breaker:   config.BreakerConfig{FailThreshold: 2, OpenForMs: 60000},
	})
}

func TestHTTPProviderSendsResendPayload(t *testing.T) {
	var got sendEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	p := providerFor(srv, "resend", "re_test")
	err := p.Send(context.Background(), model.Email{
		From:    "no-reply@example.com",
		To:      []string{"ops@example.com"},
		Subject: "Test",
		HTML:    "<p>ok</p>",
		Attachments: []model.ResolvedAttachment{
			{Filename: "a.txt", ContentType: "text/plain", Content: []byte("hello")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ops@example.com"}, got.To)
	assert.Equal(t, "Test", got.Subject)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), got.Attachments[0].Content)
}

func TestHTTPProviderWithoutKeyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider without key must not be called")
	}))
	defer srv.Close()

	p := providerFor(srv, "resend", "")
	assert.False(t, p.Ready())

	err := p.Send(context.Background(), model.Email{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, ErrChannelUnavailable)

	err = NewDispatcher([]Provider{p}, "x@example.com").Send(context.Background(), model.Email{})
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestHTTPProviderClientErrorDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid to"}`))
	}))
	defer srv.Close()

	p := providerFor(srv, "resend", "k")
	for i := 0; i < 3; i++ {
		err := p.Send(context.Background(), model.Email{To: []string{"bad"}})
		var perr *ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
		assert.NotErrorIs(t, err, ErrChannelUnavailable)
	}
	assert.True(t, p.Ready())
}

func TestDispatcherFailsOverAndOpensBreaker(t *testing.T) {
	var badCalls, goodCalls atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	d := NewDispatcher([]Provider{providerFor(bad, "bad", "k"), providerFor(good, "good", "k")}, "from@example.com")

	for i := 0; i < 4; i++ {
		require.NoError(t, d.Send(context.Background(), model.Email{To: []string{"a@example.com"}}))
	}
	assert.Equal(t, int32(4), goodCalls.Load())
	// threshold is 2: after two 502s the bad provider is skipped
	assert.Equal(t, int32(2), badCalls.Load())
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.ProviderSendsTotal.WithLabelValues("good", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ProviderSendsTotal.WithLabelValues("bad", "error")))
}

func TestDispatcherAllBreakersOpenIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewDispatcher([]Provider{providerFor(srv, "only", "k")}, "from@example.com")

	// first two failures are per-message failures
	for i := 0; i < 2; i++ {
		err := d.Send(context.Background(), model.Email{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrChannelUnavailable))
	}
	// breaker is open now
	assert.ErrorIs(t, d.Send(context.Background(), model.Email{}), ErrChannelUnavailable)
}

func TestBreakerHalfOpenAdmitsOneTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.OnFailure()
	assert.Equal(t, "open", b.State())
	assert.False(t, b.TryAcquire())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.TryAcquire())
	assert.Equal(t, "half_open", b.State())
	// only one trial call at a time
	assert.False(t, b.TryAcquire())

	b.OnSuccess()
	assert.Equal(t, "closed", b.State())
	assert.True(t, b.Ready())
}

func TestWebhookClientReturnsNon2xxAsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := NewWebhookClient(time.Second, 4)
	res, err := c.Post(context.Background(), srv.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.False(t, res.OK())
	assert.Equal(t, "0123", res.Body)
}

func TestWebhookClientBodyStaysValidUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a" + strings.Repeat("ç", 3000)))
	}))
	defer srv.Close()

	res, err := NewWebhookClient(time.Second, 4096).Post(context.Background(), srv.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(res.Body))
	assert.Len(t, res.Body, 4095)
}

func TestWebhookClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewWebhookClient(time.Second, 0).Post(context.Background(), url, []byte(`{}`))
	assert.Error(t, err)
}

func TestAttachmentFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/report.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		case "/big":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewAttachmentFetcher(time.Second, 32)

	got, err := f.Fetch(context.Background(), model.AttachmentRef{URL: srv.URL + "/docs/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), got.Content)

	_, err = f.Fetch(context.Background(), model.AttachmentRef{URL: srv.URL + "/missing"})
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), model.AttachmentRef{URL: srv.URL + "/big"})
	assert.Error(t, err)
}
