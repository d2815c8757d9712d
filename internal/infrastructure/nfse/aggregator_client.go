package nfse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jhoicas/nfse-emissor/internal/domain"
)

// AccessTokenSource entrega el bearer del agregador (implementado por TokenCache).
type AccessTokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// AggregatorConfig API REST del agregador nacional.
type AggregatorConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AggregatorClient envía y consulta DPS JSON. Igual que el SOAP: sin reintentos internos,
// cualquier status HTTP vuelve como RawResponse.
type AggregatorClient struct {
	base   string
	tokens AccessTokenSource
	http   *http.Client
}

// NewAggregatorClient crea el cliente. hc nil ⇒ cliente con el timeout configurado.
func NewAggregatorClient(cfg AggregatorConfig, tokens AccessTokenSource, hc *http.Client) *AggregatorClient {
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultSOAPTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &AggregatorClient{base: strings.TrimRight(cfg.BaseURL, "/"), tokens: tokens, http: hc}
}

// SubmitDPS POST {base}/dps con Idempotency-Key: reintentos con la misma clave no duplican la nota.
func (c *AggregatorClient) SubmitDPS(ctx context.Context, payload []byte, idempotencyKey string) (*RawResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.base+"/dps", payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, "AggregatorClient.SubmitDPS")
}

// GetDPS GET {base}/dps/{id}.
func (c *AggregatorClient) GetDPS(ctx context.Context, id string) (*RawResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.base+"/dps/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, "AggregatorClient.GetDPS")
}

func (c *AggregatorClient) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	if c.base == "" {
		return nil, &domain.TransportError{Op: "AggregatorClient", Msg: "URL base del agregador no configurada"}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, &domain.TransportError{Op: "AggregatorClient", Msg: "crear request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *AggregatorClient) do(req *http.Request, op string) (*RawResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return nil, &domain.TransportError{Op: op, Msg: "timeout", Err: err}
		}
		return nil, &domain.TransportError{Op: op, Msg: "llamada HTTP fallida", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// El próximo intento pedirá un token nuevo.
		c.tokens.Invalidate()
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSOAPResponseLength))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Msg: "leer respuesta", Err: err}
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}
