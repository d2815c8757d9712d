package nfse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	domnfse "github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

const (
	msgUnrecognized = "Resposta não reconhecida"
	msgLotReceived  = "Lote recebido, aguardando processamento"
)

var htmlTitle = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// recognizer reconoce una forma de respuesta y extrae el resultado.
// protocol: la forma en sí es una falla de protocolo (HTML, SOAP Fault).
type recognizer struct {
	name     string
	protocol bool
	match    func(r *response) bool
	extract  func(r *response) domnfse.Result
}

// response cuerpo ya decodificado a UTF-8 y, si es XML, su árbol.
type response struct {
	text string
	root *etree.Element
}

// ResponseParser normaliza respuestas heterogéneas (SOAP municipal, wrappers de
// proveedores, JSON del agregador) al resultado canónico. Nunca devuelve error:
// lo no reconocido es un Failure con el cuerpo crudo adjunto.
type ResponseParser struct {
	chain []recognizer
}

// NewResponseParser arma la cadena en orden de prioridad.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{chain: []recognizer{
		{name: "html", protocol: true, match: isHTML, extract: extractHTML},
		{name: "soap-fault", protocol: true, match: hasFault, extract: extractFault},
		{name: "output-xml", match: hasOutputXML, extract: extractOutputXML},
		{name: "vendor-wrapper", match: hasVendorWrapper, extract: extractVendorWrapper},
		{name: "abrasf", match: func(r *response) bool { return r.root != nil }, extract: func(r *response) domnfse.Result { return decodeInner(r.root) }},
	}}
}

// Parse recorre la cadena; el primer reconocedor que coincide gana.
func (p *ResponseParser) Parse(body []byte) domnfse.Result {
	r := newResponse(body)
	for _, rec := range p.chain {
		if rec.match(r) {
			return rec.extract(r).WithRaw(r.text)
		}
	}
	return domnfse.FailureMessage(msgUnrecognized).WithRaw(r.text)
}

// Diagnose explica una respuesta SOAP que no trae un documento ABRASF interpretable:
// HTML, SOAP Fault o forma desconocida ⇒ *domain.ProtocolError. Mensajes de rechazo
// del gobierno no son falla de protocolo ⇒ nil. Parse ya convierte esos casos en
// Failure; esto solo alimenta los logs.
func (p *ResponseParser) Diagnose(body []byte) error {
	const op = "ResponseParser.Parse"
	r := newResponse(body)
	for _, rec := range p.chain {
		if !rec.match(r) {
			continue
		}
		res := rec.extract(r)
		if rec.protocol {
			return &domain.ProtocolError{Op: op, Msg: rec.name + ": " + res.FirstError()}
		}
		if res.IsFailure() && res.FirstError() == msgUnrecognized {
			return &domain.ProtocolError{Op: op, Msg: "forma de respuesta no reconocida (" + rec.name + ")"}
		}
		return nil
	}
	return &domain.ProtocolError{Op: op, Msg: "forma de respuesta no reconocida"}
}

func newResponse(body []byte) *response {
	if !utf8.Valid(body) {
		if dec, err := charmap.ISO8859_1.NewDecoder().Bytes(body); err == nil {
			body = dec
		}
	}
	r := &response{text: string(body)}
	r.root = parseTree(r.text)
	return r
}

func parseTree(s string) *etree.Element {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") {
		return nil
	}
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(s); err != nil {
		return nil
	}
	return doc.Root()
}

// ── reconocedores ─────────────────────────────────────────────────────────────

// isHTML: la raíz del documento es <html> (se saltan BOM, prolog, DOCTYPE y comentarios).
func isHTML(r *response) bool {
	s := strings.TrimLeft(r.text, "\ufeff \t\r\n")
	for {
		low := strings.ToLower(s)
		end := ""
		switch {
		case strings.HasPrefix(low, "<!--"):
			end = "-->"
		case strings.HasPrefix(low, "<?"), strings.HasPrefix(low, "<!doctype"):
			end = ">"
		default:
			return strings.HasPrefix(low, "<html")
		}
		i := strings.Index(s, end)
		if i < 0 {
			return false
		}
		s = strings.TrimLeft(s[i+len(end):], " \t\r\n")
	}
}

func extractHTML(r *response) domnfse.Result {
	if m := htmlTitle.FindStringSubmatch(r.text); len(m) == 2 {
		if title := strings.TrimSpace(html.UnescapeString(m[1])); title != "" {
			return domnfse.FailureMessage(title)
		}
	}
	return domnfse.FailureMessage("Resposta HTML inesperada do servidor")
}

func hasFault(r *response) bool {
	return r.root != nil && findFirst(r.root, "Fault") != nil
}

// extractFault: SOAP 1.1 faultstring; SOAP 1.2 Reason/Text.
func extractFault(r *response) domnfse.Result {
	f := findFirst(r.root, "Fault")
	msg := textOf(f, "faultstring")
	if msg == "" {
		if reason := findFirst(f, "Reason"); reason != nil {
			msg = textOf(reason, "Text")
		}
	}
	if msg == "" {
		msg = "SOAP Fault"
	}
	return domnfse.FailureMessage(msg)
}

func hasOutputXML(r *response) bool {
	return r.root != nil && findFirst(r.root, "outputXML") != nil
}

func extractOutputXML(r *response) domnfse.Result {
	return decodeEmbedded(findFirst(r.root, "outputXML").Text())
}

func hasVendorWrapper(r *response) bool {
	return r.root != nil && vendorPayload(r.root) != nil
}

func extractVendorWrapper(r *response) domnfse.Result {
	return decodeEmbedded(vendorPayload(r.root).Text())
}

// vendorPayload: elementos *Result / *Return / return cuyo texto es un documento XML.
func vendorPayload(root *etree.Element) *etree.Element {
	var found *etree.Element
	walk(root, func(e *etree.Element) bool {
		if strings.HasSuffix(e.Tag, "Result") || strings.HasSuffix(e.Tag, "Return") || e.Tag == "return" {
			if strings.HasPrefix(strings.TrimSpace(e.Text()), "<") {
				found = e
				return false
			}
		}
		return true
	})
	return found
}

// decodeEmbedded: el árbol ya resolvió un nivel de entidades; algunos proveedores codifican dos veces.
func decodeEmbedded(s string) domnfse.Result {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "&lt;") {
		s = html.UnescapeString(s)
	}
	root := parseTree(s)
	if root == nil {
		return domnfse.FailureMessage(msgUnrecognized)
	}
	return decodeInner(root)
}

// decodeInner interpreta el documento ABRASF: Nfse ⇒ Success, Protocolo ⇒ Pending,
// MensagemRetorno ⇒ Failure.
func decodeInner(root *etree.Element) domnfse.Result {
	if nfse := findFirst(root, "CompNfse", "Nfse"); nfse != nil {
		inf := findFirst(nfse, "InfNfse")
		if inf == nil {
			inf = nfse
		}
		return domnfse.Success(
			textOf(inf, "Numero"),
			textOf(inf, "CodigoVerificacao"),
			textOf(inf, "LinkNfse", "UrlNfse", "Link", "link"),
			parseDate(textOf(inf, "DataEmissao")),
		)
	}
	if proto := findFirst(root, "Protocolo"); proto != nil {
		return domnfse.Pending(strings.TrimSpace(proto.Text()), textOf(root, "NumeroLote"), msgLotReceived)
	}
	if msgs := findAll(root, "MensagemRetorno"); len(msgs) > 0 {
		out := make([]domnfse.Message, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, domnfse.Message{
				Code:       textOf(m, "Codigo"),
				Message:    textOf(m, "Mensagem"),
				Correction: textOf(m, "Correcao"),
			})
		}
		return domnfse.Failure(out...)
	}
	return domnfse.FailureMessage(msgUnrecognized)
}

// ── REST (agregador nacional) ─────────────────────────────────────────────────

// flexString acepta "123" o 123: algunos agregadores envían números sin comillas.
// Objetos y arreglos no son legibles como texto.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("se esperaba texto o número, llegó %c", b[0])
	default:
		*f = flexString(b)
	}
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

type restMessage struct {
	Codigo   flexString `json:"codigo"`
	Mensagem flexString `json:"mensagem"`
	Correcao flexString `json:"correcao"`
}

type restStatus struct {
	Status flexString `json:"status"`
}

type restResponse struct {
	ID                flexString    `json:"id"`
	Status            flexString    `json:"status"`
	Numero            flexString    `json:"numero"`
	CodigoVerificacao flexString    `json:"codigo_verificacao"`
	LinkPDF           flexString    `json:"link_pdf"`
	URL               flexString    `json:"url"`
	DataEmissao       flexString    `json:"data_emissao"`
	Protocolo         flexString    `json:"protocolo"`
	Mensagem          flexString    `json:"mensagem"`
	Mensagens         []restMessage `json:"mensagens"`
	Erros             []restMessage `json:"erros"`
}

// decodeREST lee la respuesta del agregador. Solo falla si no se puede leer el status;
// si otro campo viene con un tipo inesperado se conserva al menos el status.
func decodeREST(body []byte) (restResponse, error) {
	var st restStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return restResponse{}, err
	}
	var r restResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return restResponse{Status: st.Status}, nil
	}
	return r, nil
}

// ParseREST mapea la respuesta JSON del agregador: autorizada ⇒ Success;
// rejeitada/erro/negada ⇒ Failure; cualquier otro estado ⇒ Pending.
func (p *ResponseParser) ParseREST(body []byte) domnfse.Result {
	raw := string(body)
	r, err := decodeREST(body)
	if err != nil {
		return domnfse.FailureMessage(msgUnrecognized).WithRaw(raw)
	}

	msgs := make([]domnfse.Message, 0, len(r.Mensagens)+len(r.Erros))
	for _, m := range append(r.Erros, r.Mensagens...) {
		msgs = append(msgs, domnfse.Message{Code: m.Codigo.String(), Message: m.Mensagem.String(), Correction: m.Correcao.String()})
	}

	status := strings.ToLower(r.Status.String())
	switch {
	case status == pkgnfse.RESTStatusAutorizada:
		link := r.LinkPDF.String()
		if link == "" {
			link = r.URL.String()
		}
		return domnfse.Success(r.Numero.String(), r.CodigoVerificacao.String(), link, parseDate(r.DataEmissao.String())).WithRaw(raw)

	case status == pkgnfse.RESTStatusRejeitada || status == pkgnfse.RESTStatusErro || status == pkgnfse.RESTStatusNegada,
		status == "" && len(msgs) > 0:
		if len(msgs) == 0 {
			msg := r.Mensagem.String()
			if msg == "" {
				msg = "DPS " + status
			}
			msgs = append(msgs, domnfse.Message{Message: msg})
		}
		return domnfse.Failure(msgs...).WithRaw(raw)

	default:
		protocol := r.Protocolo.String()
		if protocol == "" {
			protocol = r.ID.String()
		}
		msg := r.Mensagem.String()
		if msg == "" {
			msg = msgLotReceived
		}
		return domnfse.Pending(protocol, "", msg).WithRaw(raw)
	}
}

// DiagnoseREST *domain.ProtocolError cuando el status del agregador no se puede leer.
func (p *ResponseParser) DiagnoseREST(body []byte) error {
	if _, err := decodeREST(body); err != nil {
		return &domain.ProtocolError{Op: "ResponseParser.ParseREST", Msg: "respuesta JSON ilegible", Err: err}
	}
	return nil
}

// ── helpers de árbol por nombre local ─────────────────────────────────────────

// walk recorre en preorden; fn devuelve false para detener.
func walk(e *etree.Element, fn func(*etree.Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.ChildElements() {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// findFirst primer elemento (preorden, incluyendo e) cuyo nombre local esté en names.
func findFirst(e *etree.Element, names ...string) *etree.Element {
	if e == nil {
		return nil
	}
	var found *etree.Element
	walk(e, func(x *etree.Element) bool {
		for _, n := range names {
			if x.Tag == n {
				found = x
				return false
			}
		}
		return true
	})
	return found
}

func findAll(e *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	walk(e, func(x *etree.Element) bool {
		if x.Tag == name {
			out = append(out, x)
		}
		return true
	})
	return out
}

// textOf texto del primer descendiente con alguno de los nombres.
func textOf(e *etree.Element, names ...string) string {
	if f := findFirst(e, names...); f != nil {
		return strings.TrimSpace(f.Text())
	}
	return ""
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
