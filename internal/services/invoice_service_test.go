package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/models"
)

func TestInvoiceTotals(t *testing.T) {
	items := []models.InvoiceItem{
		{Description: "Labour", Quantity: 3, UnitPrice: decimal.RequireFromString("40.50")},
		{Description: "Part", UnitPrice: decimal.RequireFromString("12")},
	}
	total := invoiceTotal(items)

	assert.Equal(t, "133.5", total.String())
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, "121.5", items[0].Total.String())
}

func TestInvoiceLifecycleBooksPayment(t *testing.T) {
	e := newEnv(t)
	svc := NewInvoiceService(e.deps)
	ctx := context.Background()
	auth := e.as(e.fx.Owner)

	body := fmt.Sprintf(`{
		"workspaceUserId": %d,
		"status": "PAID",
		"items": [
			{"description": "Labour", "quantity": 2, "unitPrice": 50},
			{"description": "Filter", "unitPrice": 15.25}
		]
	}`, e.fx.Customer.ID)
	inv, err := svc.Create(ctx, auth, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, fmt.Sprintf("INV-%06d", inv.ID), inv.Number)
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("115.25")))
	assert.Len(t, inv.Items, 2)

	issued, err := svc.UpdateStatus(ctx, auth, inv.ID, StatusInput{Status: "ISSUED"})
	require.NoError(t, err)
	assert.NotNil(t, issued.IssueDate)

	_, err = svc.UpdateStatus(ctx, auth, inv.ID, StatusInput{Status: "PAID", Metadata: map[string]any{"method": "CARD"}})
	require.NoError(t, err)

	var payment models.Payment
	require.NoError(t, e.db.DB().Where("invoice_id = ?", inv.ID).First(&payment).Error)
	assert.Equal(t, models.MethodCard, payment.Method)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("115.25")))
	assert.Equal(t, e.fx.Customer.ID, payment.WorkspaceUserID)

	_, err = svc.UpdateStatus(ctx, auth, inv.ID, StatusInput{Status: "DRAFT"})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestInvoiceItemValidation(t *testing.T) {
	e := newEnv(t)
	svc := NewInvoiceService(e.deps)

	body := fmt.Sprintf(`{"workspaceUserId":%d,"items":[{"description":"ok","unitPrice":1},{"unitPrice":-2}]}`, e.fx.Customer.ID)
	_, err := svc.Create(context.Background(), e.as(e.fx.Owner), []byte(body))
	appErr := requireStatus(t, err, http.StatusUnprocessableEntity)
	assert.Contains(t, appErr.Errors, "items.1.description")
	assert.Contains(t, appErr.Errors, "items.1.unitPrice")
}

func TestReminderStatusTogglesActivity(t *testing.T) {
	e := newEnv(t)
	svc := NewReminderService(e.deps)
	ctx := context.Background()
	auth := e.as(e.fx.Agent)

	body := `{"entityType":"CUSTOM","entityId":1,"title":"Follow up","dueDate":"2026-11-01T09:00:00Z","status":"DONE","isActive":false}`
	r, err := svc.Create(ctx, auth, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, models.ReminderPending, r.Status)
	assert.True(t, r.IsActive)
	require.NotNil(t, r.WorkspaceUserID)
	assert.Equal(t, e.fx.Agent.ID, *r.WorkspaceUserID)

	done, err := svc.UpdateStatus(ctx, auth, r.ID, StatusInput{Status: "DONE"})
	require.NoError(t, err)
	assert.False(t, done.IsActive)

	again, err := svc.UpdateStatus(ctx, auth, r.ID, StatusInput{Status: "PENDING"})
	require.NoError(t, err)
	assert.True(t, again.IsActive)
}
