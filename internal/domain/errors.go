package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
	ErrConflict           = errors.New("conflicto con el estado actual")
	ErrMissingFiscalConf  = errors.New("configuración fiscal ausente")
	ErrInvalidState       = errors.New("estado de la nota inválido para la operación")
	ErrMissingCertificate = errors.New("certificado digital no configurado")
	ErrMissingCredentials = errors.New("credenciales OAuth no configuradas")
)

// ── Taxonomía de errores NFS-e ─────────────────────────────────────────────────
//
// Todos comparten la forma Op/Msg/Err. Op identifica la etapa del pipeline
// (ej: "vault.load", "soap.call") y Err es la causa original, si existe.

// CertificateError bundle PKCS#12 malformado, contraseña incorrecta o sin llave/certificado.
type CertificateError struct {
	Op  string
	Msg string
	Err error
}

func (e *CertificateError) Error() string { return format("certificado", e.Op, e.Msg, e.Err) }
func (e *CertificateError) Unwrap() error { return e.Err }

// SigningError fallo al firmar: elemento no encontrado, llave no RSA o que no corresponde al certificado.
type SigningError struct {
	Op  string
	Msg string
	Err error
}

func (e *SigningError) Error() string { return format("firma", e.Op, e.Msg, e.Err) }
func (e *SigningError) Unwrap() error { return e.Err }

// AuthError credenciales ausentes o intercambio OAuth rechazado.
type AuthError struct {
	Op  string
	Msg string
	Err error
}

func (e *AuthError) Error() string { return format("auth", e.Op, e.Msg, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// TransportError fallo de red, TLS o timeout en la llamada remota.
type TransportError struct {
	Op  string
	Msg string
	Err error
}

func (e *TransportError) Error() string { return format("transporte", e.Op, e.Msg, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError SOAP Fault o forma de respuesta no reconocida.
type ProtocolError struct {
	Op  string
	Msg string
	Err error
}

func (e *ProtocolError) Error() string { return format("protocolo", e.Op, e.Msg, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// DomainError configuración fiscal ausente o estado de la nota inválido.
// Err suele ser uno de los sentinels de este paquete (errors.Is funciona).
type DomainError struct {
	Op  string
	Msg string
	Err error
}

func (e *DomainError) Error() string { return format("dominio", e.Op, e.Msg, e.Err) }
func (e *DomainError) Unwrap() error { return e.Err }

func format(kind, op, msg string, err error) string {
	s := kind
	if op != "" {
		s += " [" + op + "]"
	}
	if msg != "" {
		s += ": " + msg
	}
	if err != nil {
		s = fmt.Sprintf("%s: %v", s, err)
	}
	return s
}
