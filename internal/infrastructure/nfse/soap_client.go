package nfse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// ── Operaciones ABRASF ────────────────────────────────────────────────────────

// SOAPOperation operación del webservice municipal.
type SOAPOperation string

const (
	OpRecepcionarLoteRpsSincrono SOAPOperation = "RecepcionarLoteRpsSincrono"
	OpConsultarLoteRps           SOAPOperation = "ConsultarLoteRps"
)

const (
	soapNS                = "http://schemas.xmlsoap.org/soap/envelope/"
	defaultOperationNS    = "http://nfse.abrasf.org.br"
	defaultSOAPTimeout    = 60 * time.Second
	maxSOAPResponseLength = 4 << 20
)

// SOAPConfig endpoints y opciones de transporte del webservice municipal.
type SOAPConfig struct {
	ProductionURL string
	SandboxURL    string
	// OperationNamespace namespace del elemento de operación (prefijo nfse:).
	OperationNamespace string
	// SOAPActionBase prefijo del header SOAPAction; vacío ⇒ SOAPAction "".
	SOAPActionBase string
	Timeout        time.Duration
	// InsecureSkipVerify desactiva la verificación del certificado del servidor.
	// Solo para homologaciones con cadena rota; cada transporte creado así queda en log WARN.
	InsecureSkipVerify bool
}

// RawResponse cuerpo y status HTTP tal como llegaron, sin importar el código.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// SOAPCaller puerto de transmisión al webservice municipal (mockeable en tests).
type SOAPCaller interface {
	Call(ctx context.Context, env string, op SOAPOperation, header, body []byte, cert tls.Certificate) (*RawResponse, error)
}

// SOAPClient implementa SOAPCaller: SOAP 1.1 con mTLS usando el certificado del prestador.
type SOAPClient struct {
	cfg SOAPConfig
	log zerolog.Logger
	// transport base opcional (tests); se clona para inyectar el certificado.
	base *http.Transport
}

// NewSOAPClient construye el cliente. No hay reintentos internos.
func NewSOAPClient(cfg SOAPConfig, log zerolog.Logger) *SOAPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSOAPTimeout
	}
	if cfg.OperationNamespace == "" {
		cfg.OperationNamespace = defaultOperationNS
	}
	return &SOAPClient{cfg: cfg, log: log}
}

// WithTransport usa t como base del transporte (RootCAs de pruebas, proxies).
func (c *SOAPClient) WithTransport(t *http.Transport) *SOAPClient {
	c.base = t
	return c
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName   xml.Name    `xml:"soapenv:Envelope"`
	XmlnsSoap string      `xml:"xmlns:soapenv,attr"`
	XmlnsNfse string      `xml:"xmlns:nfse,attr"`
	Header    struct{}    `xml:"soapenv:Header"`
	Body      soapRequest `xml:"soapenv:Body"`
}

type soapRequest struct {
	Operation soapOperation
}

// soapOperation: XMLName se completa con "nfse:<operación>Request".
type soapOperation struct {
	XMLName xml.Name
	Cabec   cdata `xml:"nfseCabecMsg"`
	Dados   cdata `xml:"nfseDadosMsg"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// CabecalhoABRASF cabecera estándar nfseCabecMsg de la versión 2.04.
func CabecalhoABRASF() []byte {
	return []byte(`<cabecalho versao="` + pkgnfse.VersionABRASF + `" xmlns="` + pkgnfse.NamespaceABRASF + `"><versaoDados>` +
		pkgnfse.VersionABRASF + `</versaoDados></cabecalho>`)
}

// BuildEnvelope serializa el sobre SOAP con header y body como secciones CDATA.
func (c *SOAPClient) BuildEnvelope(op SOAPOperation, header, body []byte) ([]byte, error) {
	env := soapEnvelope{
		XmlnsSoap: soapNS,
		XmlnsNfse: c.cfg.OperationNamespace,
		Body: soapRequest{Operation: soapOperation{
			XMLName: xml.Name{Local: "nfse:" + string(op) + "Request"},
			Cabec:   cdata{Value: string(header)},
			Dados:   cdata{Value: string(body)},
		}},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// ── Call ──────────────────────────────────────────────────────────────────────

// Call envía la operación al endpoint del ambiente. Cualquier status HTTP se devuelve
// como RawResponse; red, TLS o timeout ⇒ *domain.TransportError.
func (c *SOAPClient) Call(ctx context.Context, env string, op SOAPOperation, header, body []byte, cert tls.Certificate) (*RawResponse, error) {
	const opName = "SOAPClient.Call"
	url := c.endpoint(env)
	if url == "" {
		return nil, &domain.TransportError{Op: opName, Msg: "endpoint SOAP no configurado para el ambiente " + env}
	}

	payload, err := c.BuildEnvelope(op, header, body)
	if err != nil {
		return nil, &domain.TransportError{Op: opName, Msg: "armar envelope", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.TransportError{Op: opName, Msg: "crear request", Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", c.soapAction(op))

	tr := c.transport(cert, url)
	defer tr.CloseIdleConnections()
	client := &http.Client{Transport: tr}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &domain.TransportError{Op: opName, Msg: "timeout", Err: err}
		}
		return nil, &domain.TransportError{Op: opName, Msg: "llamada HTTP fallida", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSOAPResponseLength))
	if err != nil {
		return nil, &domain.TransportError{Op: opName, Msg: "leer respuesta", Err: err}
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (c *SOAPClient) endpoint(env string) string {
	if env == entity.EnvironmentProduction {
		return c.cfg.ProductionURL
	}
	return c.cfg.SandboxURL
}

func (c *SOAPClient) soapAction(op SOAPOperation) string {
	if c.cfg.SOAPActionBase == "" {
		return ""
	}
	return c.cfg.SOAPActionBase + string(op)
}

// transport crea un transporte por llamada: el certificado cliente es del prestador.
// Sin keep-alive: la conexión se cierra al terminar la llamada.
func (c *SOAPClient) transport(cert tls.Certificate, url string) *http.Transport {
	var t *http.Transport
	if c.base != nil {
		t = c.base.Clone()
	} else {
		t = http.DefaultTransport.(*http.Transport).Clone()
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.TLSClientConfig != nil {
		tlsCfg = t.TLSClientConfig.Clone()
	}
	if len(cert.Certificate) > 0 {
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if c.cfg.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true
		c.log.Warn().
			Str("audit", "tls_insecure_skip_verify").
			Str("endpoint", url).
			Msg("[NFSE] transporte SOAP sin verificación del certificado del servidor")
	}
	t.TLSClientConfig = tlsCfg
	t.DisableKeepAlives = true
	return t
}
