package nfse

// =============================================================================
// Leiaute ABRASF 2.04: constantes del lote síncrono
// =============================================================================

const (
	NamespaceABRASF = "http://www.abrasf.org.br/nfse.xsd"
	VersionABRASF   = "2.04"
)

// Tipo de RPS.
const (
	TipoRPS              = "1" // Recibo Provisório de Serviços
	TipoRPSNotaConjugada = "2"
	TipoRPSCupom         = "3"
)

// Status del RPS.
const (
	StatusRPSNormal    = "1"
	StatusRPSCancelado = "2"
)

// Exigibilidade do ISS.
const (
	ExigibilidadeExigivel         = "1"
	ExigibilidadeNaoIncidencia    = "2"
	ExigibilidadeIsencao          = "3"
	ExigibilidadeExportacao       = "4"
	ExigibilidadeImunidade        = "5"
	ExigibilidadeSuspensaJudicial = "6"
	ExigibilidadeSuspensaAdm      = "7"
)

// Sim / Não de los campos IssRetido, OptanteSimplesNacional, IncentivoFiscal.
const (
	Sim = "1"
	Nao = "2"
)

// =============================================================================
// API del agregador nacional (DPS JSON)
// =============================================================================

// Tipo de ambiente (tpAmb).
const (
	TpAmbProducao    = 1
	TpAmbHomologacao = 2
)

// Estados devueltos por el agregador.
const (
	RESTStatusAutorizada = "autorizada"
	RESTStatusRejeitada  = "rejeitada"
	RESTStatusErro       = "erro"
	RESTStatusNegada     = "negada"
)

// =============================================================================
// Valores por defecto de normalización
// =============================================================================

const (
	// DefaultMunicipalCode código IBGE usado cuando ni el tomador ni el prestador lo informan (São Paulo).
	DefaultMunicipalCode = "3550308"

	PlaceholderStreet       = "NAO INFORMADO"
	PlaceholderNumber       = "S/N"
	PlaceholderNeighborhood = "CENTRO"
	PlaceholderName         = "CONSUMIDOR NAO IDENTIFICADO"
)
