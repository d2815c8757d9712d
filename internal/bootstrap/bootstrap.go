// Package bootstrap arma el grafo de dependencias compartido por la API y la CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/nfse-emissor/internal/application/billing"
	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/certstore"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/events"
	infranfse "github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse/signer"
	infrapdf "github.com/jhoicas/nfse-emissor/internal/infrastructure/pdf"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/postgres"
	"github.com/jhoicas/nfse-emissor/pkg/config"
	"github.com/jhoicas/nfse-emissor/pkg/logger"
)

// Services componentes listos para usar. Close libera pool y conexión AMQP.
type Services struct {
	Pool         *pgxpool.Pool
	Certificates repository.CertificateStore
	Orchestrator *billing.NFSeOrchestrator
	DANFSe       *billing.PDFUseCase

	closers []func()
}

// New conecta PostgreSQL (y AMQP si está configurado) y construye el orquestador.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, error) {
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	s := &Services{Pool: pool, closers: []func(){pool.Close}}

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	switch cfg.Cert.Store {
	case "file":
		s.Certificates = certstore.NewFileStore(cfg.Cert.Dir)
	default:
		s.Certificates = postgres.NewCertificateRepository(pool)
	}

	// Municipal: DPS XML → firma → SOAP. Sin URLs el proveedor abrasf queda deshabilitado.
	var soap billing.MunicipalTransport
	if cfg.NFSe.ProductionURL != "" || cfg.NFSe.SandboxURL != "" {
		soap = infranfse.NewSOAPClient(infranfse.SOAPConfig{
			ProductionURL:      cfg.NFSe.ProductionURL,
			SandboxURL:         cfg.NFSe.SandboxURL,
			OperationNamespace: cfg.NFSe.OperationNamespace,
			SOAPActionBase:     cfg.NFSe.SOAPActionBase,
			Timeout:            cfg.NFSe.Timeout,
			InsecureSkipVerify: cfg.NFSe.InsecureSkipVerify,
		}, log.Component("soap"))
	} else {
		log.Warn().Msg("NFSE_SOAP_URL_* sin configurar: emisión municipal (abrasf) deshabilitada")
	}

	// Nacional: DPS JSON → OAuth2 → REST.
	var aggregator billing.AggregatorAPI
	if cfg.Aggregator.Enabled() {
		tokens := infranfse.NewTokenCache(infranfse.TokenCacheConfig{
			TokenURL:     cfg.Aggregator.TokenURL,
			ClientID:     cfg.Aggregator.ClientID,
			ClientSecret: cfg.Aggregator.ClientSecret,
			Scopes:       cfg.Aggregator.Scopes,
		})
		aggregator = infranfse.NewAggregatorClient(infranfse.AggregatorConfig{
			BaseURL: cfg.Aggregator.BaseURL,
			Timeout: cfg.Aggregator.Timeout,
		}, tokens, nil)
	}

	var publisher billing.EventPublisher
	if cfg.AMQP.URL != "" {
		rp, err := events.NewRabbitMQPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Component("events"))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("conexión a RabbitMQ: %w", err)
		}
		s.closers = append(s.closers, rp.Close)
		publisher = rp
	} else {
		publisher = events.NewNoopPublisher(log.Component("events"))
	}

	s.Orchestrator = billing.NewNFSeOrchestrator(
		invoiceRepo,
		s.Certificates,
		infranfse.NewXMLBuilderService(cfg.NFSe.FallbackMunicipalCode),
		infranfse.NewJSONBuilderService(cfg.NFSe.FallbackMunicipalCode),
		signer.NewDigitalSignatureService(signer.ParseDigest(cfg.NFSe.Digest)),
		soap,
		aggregator,
		infranfse.NewResponseParser(),
		publisher,
		log.Component("orchestrator"),
	)
	s.DANFSe = billing.NewPDFUseCase(invoiceRepo, infrapdf.NewDANFSeGenerator())
	return s, nil
}

// Close libera recursos en orden inverso.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
