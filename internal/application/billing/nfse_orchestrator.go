package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
	infranfse "github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse/signer"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// NFSeOrchestrator orquesta el ciclo completo de emisión de una NFS-e:
//
//	Municipal (abrasf):  DPS XML → Firma XML-DSig → SOAP RecepcionarLoteRpsSincrono → Parse → Reconcile
//	Nacional (nacional): DPS JSON → OAuth → POST /dps (Idempotency-Key) → ParseREST → Reconcile
//
// Cada Emit/CheckStatus es un pipeline síncrono. La clave de idempotencia se genera una
// vez por intento y se persiste con status=pending antes de transmitir, así un reintento
// tras una caída reutiliza la misma clave (Id del bloque firmado / header Idempotency-Key).
type NFSeOrchestrator struct {
	invoiceRepo repository.InvoiceRepository
	certRepo    repository.CertificateRepository
	xmlBuilder  MunicipalBuilder
	jsonBuilder DPSBuilder
	signer      pkgnfse.Signer
	soap        MunicipalTransport // nil si no hay webservice municipal configurado
	aggregator  AggregatorAPI      // nil si no hay agregador configurado
	parser      ResultParser
	events      EventPublisher
	log         zerolog.Logger

	now    func() time.Time
	newKey func() string
}

// NewNFSeOrchestrator construye el orquestador con todas sus dependencias.
// soap, aggregator y events pueden ser nil.
func NewNFSeOrchestrator(
	invoiceRepo repository.InvoiceRepository,
	certRepo repository.CertificateRepository,
	xmlBuilder MunicipalBuilder,
	jsonBuilder DPSBuilder,
	xmlSigner pkgnfse.Signer,
	soap MunicipalTransport,
	aggregator AggregatorAPI,
	parser ResultParser,
	events EventPublisher,
	log zerolog.Logger,
) *NFSeOrchestrator {
	return &NFSeOrchestrator{
		invoiceRepo: invoiceRepo,
		certRepo:    certRepo,
		xmlBuilder:  xmlBuilder,
		jsonBuilder: jsonBuilder,
		signer:      xmlSigner,
		soap:        soap,
		aggregator:  aggregator,
		parser:      parser,
		events:      events,
		log:         log,
		now:         time.Now,
		newKey:      uuid.NewString,
	}
}

// submission transmisión ya preparada (documento construido y firmado) más su parser.
type submission struct {
	send     func(ctx context.Context) (*infranfse.RawResponse, error)
	parse    func(body []byte) nfse.Result
	diagnose func(body []byte) error
}

// Emit construye, firma y transmite la nota, y persiste el resultado reconciliado.
//
// Errores de configuración (sin config fiscal, sin certificado, sin credenciales, estado
// inválido) se devuelven como error. Fallas de transporte se devuelven como Result Failure
// sin tocar el estado: la nota queda pending con su clave para reintentar.
func (o *NFSeOrchestrator) Emit(ctx context.Context, invoiceID string) (nfse.Result, error) {
	const op = "NFSeOrchestrator.Emit"
	log := o.log.With().Str("invoice_id", invoiceID).Str("op", "emit").Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 0. Datos de emisión y precondiciones
	// ═══════════════════════════════════════════════════════════════════════════
	data, err := o.load(ctx, op, invoiceID)
	if err != nil {
		return nfse.Result{}, err
	}
	inv := data.Invoice
	switch inv.Status {
	case entity.InvoiceStatusAuthorized:
		return nfse.Result{}, &domain.DomainError{Op: op, Msg: "la nota ya fue autorizada (NFS-e " + inv.NFSeNumber + ")", Err: domain.ErrInvalidState}
	case entity.InvoiceStatusRejected:
		// Nuevo intento con datos corregidos: nueva clave y sin errores previos.
		log.Info().Str("step", "retry").Msg("[NFSE] reintento de nota rechazada")
		inv.IdempotencyKey = ""
		inv.Protocol = ""
		inv.ErrorMessage = ""
		inv.ErrorList = ""
	}
	if inv.IdempotencyKey == "" {
		inv.IdempotencyKey = o.newKey()
	}
	log = log.With().Str("idempotency_key", inv.IdempotencyKey).Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Construir (y firmar) el documento
	// ═══════════════════════════════════════════════════════════════════════════
	var sub *submission
	switch provider(data.Config) {
	case entity.ProviderABRASF:
		sub, err = o.prepareMunicipal(ctx, op, data, log)
	case entity.ProviderNacional:
		sub, err = o.prepareAggregator(op, data, log)
	default:
		err = &domain.DomainError{Op: op, Msg: fmt.Sprintf("proveedor desconocido %q (usar abrasf|nacional)", data.Config.Provider), Err: domain.ErrMissingFiscalConf}
	}
	if err != nil {
		log.Error().Err(err).Str("step", "prepare").Msg("[NFSE] no se pudo preparar el documento")
		return nfse.Result{}, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Persistir pending con la clave antes de transmitir
	// ═══════════════════════════════════════════════════════════════════════════
	inv.Status = entity.InvoiceStatusPending
	inv.UpdatedAt = o.now()
	if err := o.invoiceRepo.UpdateFiscalResult(ctx, inv); err != nil {
		return nfse.Result{}, fmt.Errorf("nfse: persistir pending de %s: %w", invoiceID, err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Transmitir y normalizar
	// ═══════════════════════════════════════════════════════════════════════════
	return o.transmit(ctx, inv, sub, log)
}

// CheckStatus consulta el estado remoto de una nota ya transmitida (por protocolo) y
// persiste el resultado reconciliado.
func (o *NFSeOrchestrator) CheckStatus(ctx context.Context, invoiceID string) (nfse.Result, error) {
	const op = "NFSeOrchestrator.CheckStatus"
	log := o.log.With().Str("invoice_id", invoiceID).Str("op", "status").Logger()

	data, err := o.load(ctx, op, invoiceID)
	if err != nil {
		return nfse.Result{}, err
	}
	inv := data.Invoice
	if inv.Protocol == "" {
		return nfse.Result{}, &domain.DomainError{Op: op, Msg: "la nota no tiene protocolo para consultar (estado " + inv.Status + ")", Err: domain.ErrInvalidState}
	}

	var sub *submission
	switch provider(data.Config) {
	case entity.ProviderABRASF:
		sub, err = o.prepareLotQuery(ctx, op, data)
	case entity.ProviderNacional:
		if o.aggregator == nil {
			err = &domain.AuthError{Op: op, Msg: "agregador nacional no configurado", Err: domain.ErrMissingCredentials}
			break
		}
		protocol := inv.Protocol
		sub = &submission{
			send:     func(ctx context.Context) (*infranfse.RawResponse, error) { return o.aggregator.GetDPS(ctx, protocol) },
			parse:    o.parser.ParseREST,
			diagnose: o.parser.DiagnoseREST,
		}
	default:
		err = &domain.DomainError{Op: op, Msg: fmt.Sprintf("proveedor desconocido %q", data.Config.Provider), Err: domain.ErrMissingFiscalConf}
	}
	if err != nil {
		return nfse.Result{}, err
	}
	return o.transmit(ctx, inv, sub, log)
}

// ── etapas ────────────────────────────────────────────────────────────────────

func (o *NFSeOrchestrator) load(ctx context.Context, op, invoiceID string) (*entity.EmissionData, error) {
	data, err := o.invoiceRepo.GetEmissionData(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("nfse: cargar nota %s: %w", invoiceID, err)
	}
	if data == nil || data.Invoice == nil {
		return nil, &domain.DomainError{Op: op, Msg: "nota " + invoiceID + " no encontrada", Err: domain.ErrNotFound}
	}
	if data.Config == nil {
		return nil, &domain.DomainError{Op: op, Msg: "el prestador no tiene configuración fiscal", Err: domain.ErrMissingFiscalConf}
	}
	return data, nil
}

func (o *NFSeOrchestrator) loadBundle(ctx context.Context, op string, cfg *entity.FiscalConfig) (*signer.Bundle, error) {
	if strings.TrimSpace(cfg.CertificateRef) == "" {
		return nil, &domain.DomainError{Op: op, Msg: "configuración fiscal sin certificado", Err: domain.ErrMissingCertificate}
	}
	p12, err := o.certRepo.Fetch(ctx, cfg.CertificateRef)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.DomainError{Op: op, Msg: "certificado " + cfg.CertificateRef + " no existe en el almacén", Err: domain.ErrMissingCertificate}
	}
	if err != nil {
		return nil, &domain.CertificateError{Op: op, Msg: "no se pudo obtener el certificado " + cfg.CertificateRef, Err: err}
	}
	return signer.LoadBundle(p12, cfg.CertificatePassword)
}

func (o *NFSeOrchestrator) prepareMunicipal(ctx context.Context, op string, data *entity.EmissionData, log zerolog.Logger) (*submission, error) {
	if o.soap == nil {
		return nil, &domain.DomainError{Op: op, Msg: "webservice municipal no configurado", Err: domain.ErrMissingFiscalConf}
	}
	bundle, err := o.loadBundle(ctx, op, data.Config)
	if err != nil {
		return nil, err
	}
	if bundle.SubjectTaxID != "" && bundle.SubjectTaxID != pkgnfse.OnlyDigits(data.Config.CNPJ) {
		log.Warn().Str("step", "cert-load").Str("cert_cnpj", bundle.SubjectTaxID).
			Msg("[NFSE] el CNPJ del certificado no coincide con el del prestador")
	}

	built, err := o.xmlBuilder.Build(o.buildContext(data))
	if err != nil {
		return nil, fmt.Errorf("nfse: construir lote: %w", err)
	}
	logWarnings(log, built.Warnings)
	data.Invoice.ISSAmount = built.Amounts.ISS

	cert := bundle.TLSCertificate()
	signed, err := o.signer.Sign(built.Payload, built.ElementID, cert)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("step", "xml-sign").Str("element_id", built.ElementID).Int("bytes", len(signed)).Msg("[NFSE] lote firmado")

	env := data.Config.Environment
	return &submission{
		send: func(ctx context.Context) (*infranfse.RawResponse, error) {
			return o.soap.Call(ctx, env, infranfse.OpRecepcionarLoteRpsSincrono, infranfse.CabecalhoABRASF(), signed, cert)
		},
		parse:    o.parser.Parse,
		diagnose: o.parser.Diagnose,
	}, nil
}

func (o *NFSeOrchestrator) prepareAggregator(op string, data *entity.EmissionData, log zerolog.Logger) (*submission, error) {
	if o.aggregator == nil {
		return nil, &domain.AuthError{Op: op, Msg: "agregador nacional no configurado", Err: domain.ErrMissingCredentials}
	}
	built, err := o.jsonBuilder.Build(o.buildContext(data))
	if err != nil {
		return nil, fmt.Errorf("nfse: construir DPS: %w", err)
	}
	logWarnings(log, built.Warnings)
	data.Invoice.ISSAmount = built.Amounts.ISS

	key := data.Invoice.IdempotencyKey
	return &submission{
		send: func(ctx context.Context) (*infranfse.RawResponse, error) {
			return o.aggregator.SubmitDPS(ctx, built.Payload, key)
		},
		parse:    o.parser.ParseREST,
		diagnose: o.parser.DiagnoseREST,
	}, nil
}

func (o *NFSeOrchestrator) prepareLotQuery(ctx context.Context, op string, data *entity.EmissionData) (*submission, error) {
	if o.soap == nil {
		return nil, &domain.DomainError{Op: op, Msg: "webservice municipal no configurado", Err: domain.ErrMissingFiscalConf}
	}
	bundle, err := o.loadBundle(ctx, op, data.Config)
	if err != nil {
		return nil, err
	}
	body, err := o.xmlBuilder.BuildConsultaLote(data.Config, data.Invoice.Protocol)
	if err != nil {
		return nil, err
	}
	cert := bundle.TLSCertificate()
	env := data.Config.Environment
	return &submission{
		send: func(ctx context.Context) (*infranfse.RawResponse, error) {
			return o.soap.Call(ctx, env, infranfse.OpConsultarLoteRps, infranfse.CabecalhoABRASF(), body, cert)
		},
		parse:    o.parser.Parse,
		diagnose: o.parser.Diagnose,
	}, nil
}

// transmit envía, normaliza, reconcilia y persiste. Solo los errores de transporte se
// convierten en Failure; auth y demás errores de configuración se devuelven.
func (o *NFSeOrchestrator) transmit(ctx context.Context, inv *entity.Invoice, sub *submission, log zerolog.Logger) (nfse.Result, error) {
	raw, err := sub.send(ctx)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) {
			log.Warn().Err(err).Str("step", "transmit").Msg("[NFSE] falla de transporte, la nota conserva su estado")
			return nfse.FailureMessage(te.Error()), nil
		}
		log.Error().Err(err).Str("step", "transmit").Msg("[NFSE] transmisión abortada")
		return nfse.Result{}, err
	}

	res := sub.parse(raw.Body)
	log.Info().Str("step", "parse").Int("http_status", raw.StatusCode).Str("result", res.String()).Msg("[NFSE] respuesta normalizada")
	if res.IsFailure() && sub.diagnose != nil {
		if perr := sub.diagnose(raw.Body); perr != nil {
			log.Warn().Err(perr).Str("step", "parse").Int("http_status", raw.StatusCode).Msg("[NFSE] respuesta fuera del protocolo esperado")
		}
	}

	now := o.now()
	if !Reconcile(inv, res, now) {
		return res, nil
	}
	if err := o.invoiceRepo.UpdateFiscalResult(ctx, inv); err != nil {
		log.Error().Err(err).Str("step", "persist").Msg("[NFSE] no se pudo persistir el resultado")
		return res, fmt.Errorf("nfse: persistir resultado de %s: %w", inv.ID, err)
	}

	if evt, ok := statusEvent(inv, now); ok && o.events != nil {
		if err := o.events.Publish(ctx, evt); err != nil {
			log.Warn().Err(err).Str("step", "publish").Str("event", evt.Type).Msg("[NFSE] no se pudo publicar el evento")
		}
	}
	log.Info().Str("step", "persist").Str("status", inv.Status).Str("nfse_number", inv.NFSeNumber).Msg("[NFSE] nota actualizada")
	return res, nil
}

// ── helpers privados ──────────────────────────────────────────────────────────

func (o *NFSeOrchestrator) buildContext(data *entity.EmissionData) *infranfse.DPSBuildContext {
	return &infranfse.DPSBuildContext{
		Invoice:   data.Invoice,
		Client:    data.Client,
		Config:    data.Config,
		ElementID: infranfse.ElementIDFromKey(data.Invoice.IdempotencyKey),
	}
}

// provider: sin valor configurado se usa el webservice municipal.
func provider(cfg *entity.FiscalConfig) string {
	p := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if p == "" {
		return entity.ProviderABRASF
	}
	return p
}

func logWarnings(log zerolog.Logger, warnings []string) {
	for _, w := range warnings {
		log.Warn().Str("step", "build").Msg("[NFSE] " + w)
	}
}
