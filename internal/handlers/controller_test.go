package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/testutil"
)

func createPayment(t *testing.T, s *testServer, owner *models.WorkspaceUser, method string, amount int) map[string]any {
	t.Helper()
	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments",
		body:   fmt.Sprintf(`{"workspaceUserId":%d,"amount":%d,"method":%q,"type":"RECEIVE","status":"SUCCESS"}`, owner.ID, amount, method),
		as:     s.fx.Owner,
	})
	requireCode(t, w, http.StatusCreated)
	return decodeBody(t, w)
}

func TestPaymentCreateAndList(t *testing.T) {
	s := newTestServer(t)

	body := createPayment(t, s, s.fx.Customer, "CARD", 2000)
	assert.Equal(t, "payment created", body["message"])
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2000, data["amount"])
	assert.EqualValues(t, s.fx.Workspace.ID, data["workspaceId"])

	createPayment(t, s, s.fx.Customer, "CASH", 50)

	w := s.do(t, request{method: http.MethodGet, path: "/api/payments", as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)
	page := decodeBody(t, w)
	assert.EqualValues(t, 2, page["pagination"].(map[string]any)["total"])
	first := page["data"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 50, first["amount"], "newest first")

	w = s.do(t, request{method: http.MethodGet, path: "/api/payments?method=CARD", as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, w)["pagination"].(map[string]any)["total"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/payments?amount[gte]=1000", as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, w)["pagination"].(map[string]any)["total"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/payments?limit=1&page=2&orderBy=amount&orderDirection=asc", as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)
	page = decodeBody(t, w)
	assert.EqualValues(t, 2, page["pagination"].(map[string]any)["page"])
	assert.EqualValues(t, 2000, page["data"].([]any)[0].(map[string]any)["amount"])
}

func TestListOwnScopesCustomers(t *testing.T) {
	s := newTestServer(t)
	other := testutil.AddMember(t, s.db, s.fx.Workspace.ID, "Other", models.RoleUser)
	createPayment(t, s, s.fx.Customer, "CARD", 10)
	createPayment(t, s, other, "CARD", 20)

	w := s.do(t, request{method: http.MethodGet, path: "/api/payments?own=true", as: s.fx.Customer})
	requireCode(t, w, http.StatusOK)
	page := decodeBody(t, w)
	assert.EqualValues(t, 1, page["pagination"].(map[string]any)["total"])

	// own has no effect for staff.
	w = s.do(t, request{method: http.MethodGet, path: "/api/payments?own=true", as: s.fx.Agent})
	requireCode(t, w, http.StatusOK)
	assert.EqualValues(t, 2, decodeBody(t, w)["pagination"].(map[string]any)["total"])
}

func TestListRejectsBadQueries(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/payments?bogus=1",
		"/api/payments?include=notjson",
		"/api/payments?method=GOLD",
		"/api/payments?amount=lots",
		"/api/payments?method[gt]=CARD",
		"/api/payments?orderBy=nope",
		"/api/payments?startDate=yesterday",
	} {
		t.Run(path, func(t *testing.T) {
			w := s.do(t, request{method: http.MethodGet, path: path, as: s.fx.Owner})
			requireCode(t, w, http.StatusBadRequest)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}
}

func TestMissingAndForbidden(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, request{method: http.MethodGet, path: "/api/payments/999", as: s.fx.Owner})
	requireCode(t, w, http.StatusNotFound)

	w = s.do(t, request{method: http.MethodDelete, path: "/api/payments/999", as: s.fx.Owner})
	requireCode(t, w, http.StatusNotFound)

	w = s.do(t, request{method: http.MethodGet, path: "/api/payments/abc", as: s.fx.Owner})
	requireCode(t, w, http.StatusBadRequest)

	w = s.do(t, request{method: http.MethodDelete, path: "/api/payments/1", as: s.fx.Customer})
	requireCode(t, w, http.StatusForbidden)

	w = s.do(t, request{method: http.MethodGet, path: "/api/payments"})
	requireCode(t, w, http.StatusUnauthorized)
}

func TestPaymentValidationIs422(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, request{method: http.MethodPost, path: "/api/payments", body: `{"amount":-1,"method":"GOLD"}`, as: s.fx.Owner})
	requireCode(t, w, http.StatusUnprocessableEntity)
	errs := decodeBody(t, w)["errors"].(map[string]any)
	assert.Contains(t, errs, "amount")
	assert.Contains(t, errs, "workspaceUserId")
}

func TestPaymentDeleteAndAggregate(t *testing.T) {
	s := newTestServer(t)
	created := createPayment(t, s, s.fx.Customer, "CARD", 30)
	createPayment(t, s, s.fx.Customer, "CARD", 70)
	id := created["data"].(map[string]any)["id"]

	w := s.do(t, request{method: http.MethodGet, path: "/api/payments/aggregate?fields=amount", as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)
	agg := decodeBody(t, w)
	assert.EqualValues(t, 2, agg["count"])

	w = s.do(t, request{method: http.MethodDelete, path: fmt.Sprintf("/api/payments/%v", id), as: s.fx.Owner})
	requireCode(t, w, http.StatusNoContent)

	w = s.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/api/payments/%v", id), as: s.fx.Owner})
	requireCode(t, w, http.StatusNotFound)
}

func TestChequeStatusRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/api/cheques",
		body:   fmt.Sprintf(`{"serial":"CHQ-9","bankName":"First Bank","amount":1200,"dueDate":"2026-12-01T00:00:00Z","workspaceUserId":%d}`, s.fx.Customer.ID),
		as:     s.fx.Owner,
	})
	requireCode(t, w, http.StatusCreated)
	cheque := decodeBody(t, w)["data"].(map[string]any)
	path := fmt.Sprintf("/api/cheques/%v/status", cheque["id"])

	w = s.do(t, request{method: http.MethodPatch, path: path, body: `{"status":"CLEARED"}`, as: s.fx.Owner})
	requireCode(t, w, http.StatusBadRequest)
	assert.Equal(t, "cannot change cheque status from CREATED to CLEARED", decodeBody(t, w)["error"])

	w = s.do(t, request{method: http.MethodPatch, path: path, body: `{"status":"DEPOSITED"}`, as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)

	w = s.do(t, request{method: http.MethodPatch, path: path, body: `{"status":"CLEARED","note":"bank confirmed"}`, as: s.fx.Owner})
	requireCode(t, w, http.StatusOK)
	cleared := decodeBody(t, w)
	assert.Equal(t, "CLEARED", cleared["status"])
	assert.NotNil(t, cleared["paymentId"])

	var payments int64
	require.NoError(t, s.db.DB().Model(&models.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)

	var reminder models.Reminder
	require.NoError(t, s.db.DB().Where("entity_id = ?", cheque["id"]).First(&reminder).Error)
	assert.False(t, reminder.IsActive)
}

func TestCreateReminderForRecord(t *testing.T) {
	s := newTestServer(t)
	created := createPayment(t, s, s.fx.Customer, "CARD", 30)
	id := created["data"].(map[string]any)["id"]

	w := s.do(t, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/payments/%v/reminder", id),
		body:   `{"title":"Call back","dueDate":"2026-11-01T09:00:00Z"}`,
		as:     s.fx.Owner,
	})
	requireCode(t, w, http.StatusCreated)
	reminder := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "Call back", reminder["title"])
	assert.EqualValues(t, id, reminder["entityId"])
}
