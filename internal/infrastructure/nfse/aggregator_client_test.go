package nfse_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse"
)

type stubTokens struct {
	token       string
	err         error
	invalidated int
}

func (s *stubTokens) Token(context.Context) (string, error) { return s.token, s.err }
func (s *stubTokens) Invalidate()                           { s.invalidated++ }

func TestAggregatorClient_SubmitDPS(t *testing.T) {
	var gotAuth, gotKey, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.Method + " " + r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"dps-1","status":"processando"}`))
	}))
	defer srv.Close()

	c := nfse.NewAggregatorClient(nfse.AggregatorConfig{BaseURL: srv.URL + "/"}, &stubTokens{token: "tok"}, srv.Client())
	resp, err := c.SubmitDPS(context.Background(), []byte(`{"infDPS":{}}`), "key-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "POST /dps", gotPath)
	assert.Equal(t, `{"infDPS":{}}`, gotBody)
}

func TestAggregatorClient_GetDPS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dps/dps-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"autorizada","numero":"123","codigo_verificacao":"ABC"}`))
	}))
	defer srv.Close()

	c := nfse.NewAggregatorClient(nfse.AggregatorConfig{BaseURL: srv.URL}, &stubTokens{token: "tok"}, nil)
	resp, err := c.GetDPS(context.Background(), "dps-1")
	require.NoError(t, err)

	res := nfse.NewResponseParser().ParseREST(resp.Body)
	require.True(t, res.IsSuccess())
	assert.Equal(t, "123", res.Number)
}

func TestAggregatorClient_401InvalidaToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &stubTokens{token: "vencido"}
	c := nfse.NewAggregatorClient(nfse.AggregatorConfig{BaseURL: srv.URL}, tokens, nil)
	resp, err := c.GetDPS(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, tokens.invalidated)
}

func TestAggregatorClient_ErrorDeTokenSePropaga(t *testing.T) {
	authErr := &domain.AuthError{Op: "test", Msg: "sin credenciales", Err: domain.ErrMissingCredentials}
	c := nfse.NewAggregatorClient(nfse.AggregatorConfig{BaseURL: "http://127.0.0.1:1"}, &stubTokens{err: authErr}, nil)
	_, err := c.SubmitDPS(context.Background(), []byte("{}"), "k")
	assert.True(t, errors.Is(err, domain.ErrMissingCredentials))
}

func TestAggregatorClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := nfse.NewAggregatorClient(nfse.AggregatorConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, &stubTokens{token: "t"}, nil)
	_, err := c.GetDPS(context.Background(), "x")
	var tErr *domain.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Contains(t, err.Error(), "timeout")
}
