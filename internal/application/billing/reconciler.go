package billing

import (
	"encoding/json"
	"time"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
)

// Reconcile aplica el resultado canónico sobre los campos fiscales de la nota y
// devuelve true si algo cambió (en ese caso UpdatedAt = now).
//
//   - Success ⇒ authorized con número, código de verificación y link del PDF.
//   - Failure ⇒ rejected con el primer error, la lista completa (JSON) y la respuesta cruda.
//     Una nota ya autorizada no vuelve a rejected.
//   - Pending ⇒ el estado no cambia; solo se captura el protocolo.
//
// Aplicar dos veces el mismo resultado terminal no modifica nada.
func Reconcile(inv *entity.Invoice, res nfse.Result, now time.Time) bool {
	if inv == nil {
		return false
	}
	before := *inv

	switch res.Kind {
	case nfse.KindSuccess:
		inv.Status = entity.InvoiceStatusAuthorized
		inv.NFSeNumber = res.Number
		inv.AuthCode = res.VerificationCode
		if res.PDFURL != "" {
			inv.PDFURL = res.PDFURL
		}
		inv.ErrorMessage = ""
		inv.ErrorList = ""
		if res.Raw != "" {
			inv.RawReturn = res.Raw
		}

	case nfse.KindFailure:
		if inv.Status == entity.InvoiceStatusAuthorized {
			return false
		}
		inv.Status = entity.InvoiceStatusRejected
		inv.ErrorMessage = res.FirstError()
		inv.ErrorList = errorListJSON(res.Errors)
		inv.RawReturn = res.Raw

	case nfse.KindPending:
		if inv.IsTerminal() {
			return false
		}
		if res.Protocol != "" {
			inv.Protocol = res.Protocol
		}

	default:
		return false
	}

	if *inv == before {
		return false
	}
	inv.UpdatedAt = now
	return true
}

func errorListJSON(errs []nfse.Message) string {
	if len(errs) == 0 {
		return ""
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return ""
	}
	return string(b)
}

// statusEvent evento a publicar para una nota en estado terminal; ok=false si no aplica.
func statusEvent(inv *entity.Invoice, now time.Time) (StatusEvent, bool) {
	evt := StatusEvent{
		InvoiceID:  inv.ID,
		Status:     inv.Status,
		OccurredAt: now,
	}
	switch inv.Status {
	case entity.InvoiceStatusAuthorized:
		evt.Type = EventNFSeAuthorized
		evt.NFSeNumber = inv.NFSeNumber
		evt.AuthCode = inv.AuthCode
		evt.PDFURL = inv.PDFURL
	case entity.InvoiceStatusRejected:
		evt.Type = EventNFSeRejected
		evt.ErrorMessage = inv.ErrorMessage
	default:
		return StatusEvent{}, false
	}
	return evt, true
}
