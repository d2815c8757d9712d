package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/internal/application/dto"
	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	apphttp "github.com/jhoicas/nfse-emissor/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/nfse-emissor/pkg/jwt"
)

type stubEmitter struct {
	res    nfse.Result
	err    error
	called []string
}

func (s *stubEmitter) Emit(_ context.Context, id string) (nfse.Result, error) {
	s.called = append(s.called, "emit:"+id)
	return s.res, s.err
}

func (s *stubEmitter) CheckStatus(_ context.Context, id string) (nfse.Result, error) {
	s.called = append(s.called, "status:"+id)
	return s.res, s.err
}

type stubDANFSe struct {
	pdf []byte
	err error
}

func (s *stubDANFSe) DownloadDANFSe(_ context.Context, id string) ([]byte, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return s.pdf, "nfse_" + id + ".pdf", nil
}

func newRouterApp(em *stubEmitter, pdf *stubDANFSe) *fiber.App {
	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Emitter:     em,
		DANFSe:      pdf,
		JWTSecret:   testJWTSecret,
		JWTIssuer:   testIssuer,
		ServiceName: "nfse-emissor",
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, role string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set("Authorization", tokenForRole(t, role))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) dto.NFSeResultResponse {
	t.Helper()
	var out dto.NFSeResultResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth_Publico(t *testing.T) {
	app := newRouterApp(&stubEmitter{}, &stubDANFSe{})
	resp := call(t, app, http.MethodGet, "/health", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body dto.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "nfse-emissor", body.Service)
}

func TestEmit_Autorizada(t *testing.T) {
	em := &stubEmitter{res: nfse.Success("202400000000123", "ABCD1234", "https://nfse.example/123.pdf", nil)}
	app := newRouterApp(em, &stubDANFSe{})

	resp := call(t, app, http.MethodPost, "/api/nfse/inv-1/emit", pkgjwt.RoleEmissor)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.Equal(t, "inv-1", out.InvoiceID)
	assert.Equal(t, "success", out.Kind)
	assert.Equal(t, "202400000000123", out.Number)
	assert.Equal(t, "ABCD1234", out.VerificationCode)
	assert.Equal(t, []string{"emit:inv-1"}, em.called)
}

func TestEmit_PendienteDevuelve202(t *testing.T) {
	em := &stubEmitter{res: nfse.Pending("PROT-9", "17", "lote en proceso")}
	app := newRouterApp(em, &stubDANFSe{})

	resp := call(t, app, http.MethodPost, "/api/nfse/inv-2/emit", pkgjwt.RoleAdmin)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.Equal(t, "pending", out.Kind)
	assert.Equal(t, "PROT-9", out.Protocol)
}

func TestEmit_RechazadaIncluyeErrores(t *testing.T) {
	em := &stubEmitter{res: nfse.Failure(nfse.Message{Code: "E160", Message: "CNPJ do tomador inválido", Correction: "Informe um CNPJ válido"})}
	app := newRouterApp(em, &stubDANFSe{})

	resp := call(t, app, http.MethodPost, "/api/nfse/inv-3/emit", pkgjwt.RoleAdmin)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.Equal(t, "failure", out.Kind)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "E160", out.Errors[0].Code)
	assert.Equal(t, "Informe um CNPJ válido", out.Errors[0].Correction)
}

func TestEmit_RolConsultaNoPuedeEmitir(t *testing.T) {
	em := &stubEmitter{}
	app := newRouterApp(em, &stubDANFSe{})

	resp := call(t, app, http.MethodPost, "/api/nfse/inv-1/emit", pkgjwt.RoleConsulta)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, em.called, "el orquestador no debe invocarse")
}

func TestEmit_SinToken(t *testing.T) {
	app := newRouterApp(&stubEmitter{}, &stubDANFSe{})
	resp := call(t, app, http.MethodPost, "/api/nfse/inv-1/emit", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmit_MapeoDeErrores(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no encontrada", &domain.DomainError{Op: "emit", Msg: "nota inexistente", Err: domain.ErrNotFound}, http.StatusNotFound, "NOT_FOUND"},
		{"ya autorizada", &domain.DomainError{Op: "emit", Msg: "ya autorizada", Err: domain.ErrInvalidState}, http.StatusConflict, "INVALID_STATE"},
		{"sin config fiscal", &domain.DomainError{Op: "emit", Err: domain.ErrMissingFiscalConf}, http.StatusUnprocessableEntity, "MISSING_FISCAL_CONFIG"},
		{"sin certificado", &domain.DomainError{Op: "emit", Err: domain.ErrMissingCertificate}, http.StatusUnprocessableEntity, "MISSING_CERTIFICATE"},
		{"sin credenciales", &domain.AuthError{Op: "token", Err: domain.ErrMissingCredentials}, http.StatusUnprocessableEntity, "MISSING_CREDENTIALS"},
		{"oauth rechazado", &domain.AuthError{Op: "token", Msg: "invalid_client"}, http.StatusBadGateway, "AUTH_FAILED"},
		{"certificado inválido", &domain.CertificateError{Op: "vault.load", Msg: "contraseña incorrecta"}, http.StatusUnprocessableEntity, "CERTIFICATE_INVALID"},
		{"firma", &domain.SigningError{Op: "sign", Msg: "elemento no encontrado"}, http.StatusInternalServerError, "SIGNING_FAILED"},
		{"inesperado", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newRouterApp(&stubEmitter{err: tc.err}, &stubDANFSe{})
			resp := call(t, app, http.MethodPost, "/api/nfse/inv-1/emit", pkgjwt.RoleAdmin)
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
			var body dto.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestStatus_ConsultaPermitida(t *testing.T) {
	em := &stubEmitter{res: nfse.Pending("PROT-9", "", "")}
	app := newRouterApp(em, &stubDANFSe{})

	resp := call(t, app, http.MethodGet, "/api/nfse/inv-4/status", pkgjwt.RoleConsulta)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"status:inv-4"}, em.called)
}

func TestPDF_Descarga(t *testing.T) {
	app := newRouterApp(&stubEmitter{}, &stubDANFSe{pdf: []byte("%PDF-1.3 fake")})

	resp := call(t, app, http.MethodGet, "/api/nfse/123/pdf", pkgjwt.RoleConsulta)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="nfse_123.pdf"`)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "%PDF-1.3 fake", string(body))
}

func TestPDF_NotaNoAutorizada(t *testing.T) {
	app := newRouterApp(&stubEmitter{}, &stubDANFSe{err: domain.ErrInvalidState})

	resp := call(t, app, http.MethodGet, "/api/nfse/123/pdf", pkgjwt.RoleAdmin)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
