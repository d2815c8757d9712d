package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/internal/application/billing"
	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
)

var (
	t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
	t2 = t0.Add(2 * time.Minute)
)

func pendingInvoice() *entity.Invoice {
	return &entity.Invoice{ID: "inv-1", Status: entity.InvoiceStatusPending, UpdatedAt: t0}
}

func TestReconcile_Success(t *testing.T) {
	inv := pendingInvoice()
	changed := billing.Reconcile(inv, nfse.Success("123", "ABC", "https://nfse.example/123.pdf", nil), t1)

	assert.True(t, changed)
	assert.Equal(t, entity.InvoiceStatusAuthorized, inv.Status)
	assert.Equal(t, "123", inv.NFSeNumber)
	assert.Equal(t, "ABC", inv.AuthCode)
	assert.Equal(t, "https://nfse.example/123.pdf", inv.PDFURL)
	assert.Equal(t, t1, inv.UpdatedAt)
}

// Aplicar dos veces el mismo Success deja el estado persistido idéntico.
func TestReconcile_SuccessIdempotente(t *testing.T) {
	res := nfse.Success("123", "ABC", "", nil).WithRaw("<ok/>")
	inv := pendingInvoice()
	require.True(t, billing.Reconcile(inv, res, t1))
	snapshot := *inv

	assert.False(t, billing.Reconcile(inv, res, t2))
	assert.Equal(t, snapshot, *inv)
}

func TestReconcile_Failure(t *testing.T) {
	inv := pendingInvoice()
	res := nfse.Failure(
		nfse.Message{Code: "E160", Message: "CNPJ do tomador inválido", Correction: "Informe um CNPJ válido"},
		nfse.Message{Code: "E10", Message: "RPS já informado"},
	).WithRaw("<raw/>")

	assert.True(t, billing.Reconcile(inv, res, t1))
	assert.Equal(t, entity.InvoiceStatusRejected, inv.Status)
	assert.Equal(t, "E160 - CNPJ do tomador inválido (Correção: Informe um CNPJ válido)", inv.ErrorMessage)
	assert.Equal(t, "<raw/>", inv.RawReturn)

	var list []nfse.Message
	require.NoError(t, json.Unmarshal([]byte(inv.ErrorList), &list))
	assert.Len(t, list, 2)
	assert.Equal(t, "E10", list[1].Code)

	assert.False(t, billing.Reconcile(inv, res, t2), "mismo rechazo dos veces no cambia nada")
	assert.Equal(t, t1, inv.UpdatedAt)
}

// Pending después de un rechazo no cambia el estado persistido.
func TestReconcile_PendingNoDegradaTerminal(t *testing.T) {
	inv := pendingInvoice()
	require.True(t, billing.Reconcile(inv, nfse.FailureMessage("falha"), t1))

	assert.False(t, billing.Reconcile(inv, nfse.Pending("P-1", "7", "aguardando"), t2))
	assert.Equal(t, entity.InvoiceStatusRejected, inv.Status)
	assert.Empty(t, inv.Protocol)
	assert.Equal(t, t1, inv.UpdatedAt)
}

func TestReconcile_PendingCapturaProtocolo(t *testing.T) {
	inv := pendingInvoice()
	assert.True(t, billing.Reconcile(inv, nfse.Pending("P-1", "7", "aguardando"), t1))
	assert.Equal(t, entity.InvoiceStatusPending, inv.Status)
	assert.Equal(t, "P-1", inv.Protocol)

	assert.False(t, billing.Reconcile(inv, nfse.Pending("P-1", "7", "aguardando"), t2))
}

func TestReconcile_FailureNoPisaAutorizada(t *testing.T) {
	inv := pendingInvoice()
	require.True(t, billing.Reconcile(inv, nfse.Success("123", "ABC", "", nil), t1))

	assert.False(t, billing.Reconcile(inv, nfse.FailureMessage("duplicada"), t2))
	assert.Equal(t, entity.InvoiceStatusAuthorized, inv.Status)
	assert.Empty(t, inv.ErrorMessage)
}

// Un rechazo seguido de autorización (consulta posterior) termina autorizada y limpia errores.
func TestReconcile_SuccessTrasRechazo(t *testing.T) {
	inv := pendingInvoice()
	require.True(t, billing.Reconcile(inv, nfse.FailureMessage("lote em erro"), t1))
	require.True(t, billing.Reconcile(inv, nfse.Success("9", "Z", "", nil), t2))
	assert.Equal(t, entity.InvoiceStatusAuthorized, inv.Status)
	assert.Empty(t, inv.ErrorMessage)
	assert.Empty(t, inv.ErrorList)
}

func TestReconcile_Nil(t *testing.T) {
	assert.False(t, billing.Reconcile(nil, nfse.Success("1", "A", "", nil), t1))
}
