package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, request{method: http.MethodPost, path: "/api/auth/register",
		body: `{"name":"Ada","email":"ada@example.com","password":"correct-horse","workspace":"Globex"}`})
	requireCode(t, w, http.StatusCreated)
	session := decodeBody(t, w)
	token, _ := session["token"].(string)
	require.NotEmpty(t, token)
	require.NotNil(t, session["workspaceUser"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/register",
		body: `{"name":"Ada","email":"ada@example.com","password":"correct-horse"}`})
	requireCode(t, w, http.StatusConflict)

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/login",
		body: `{"email":"ada@example.com","password":"wrong-password"}`})
	requireCode(t, w, http.StatusUnauthorized)

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/login",
		body: `{"email":"ada@example.com","password":"correct-horse"}`})
	requireCode(t, w, http.StatusOK)

	bearer := map[string]string{"Authorization": "Bearer " + token}
	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/me", header: bearer})
	requireCode(t, w, http.StatusOK)
	me := decodeBody(t, w)
	assert.Equal(t, "ada@example.com", me["user"].(map[string]any)["email"])

	requireCode(t, s.do(t, request{method: http.MethodPost, path: "/api/auth/logout", header: bearer}), http.StatusNoContent)
	requireCode(t, s.do(t, request{method: http.MethodGet, path: "/api/auth/me", header: bearer}), http.StatusUnauthorized)
}

func TestGuestTicketFlow(t *testing.T) {
	s := newTestServer(t)
	body := fmt.Sprintf(`{"workspaceId":%d,"name":"Visitor","email":"v@example.com","subject":"Cannot log in","body":"Help please"}`, s.fx.Workspace.ID)

	w := s.do(t, request{method: http.MethodPost, path: "/api/support-chat/public/tickets", body: `{"name":"Visitor"}`})
	requireCode(t, w, http.StatusUnprocessableEntity)

	w = s.do(t, request{method: http.MethodPost, path: "/api/support-chat/public/tickets", body: body})
	requireCode(t, w, http.StatusCreated)
	cookie := cookieOf(w)
	require.NotEmpty(t, cookie)
	data := decodeBody(t, w)["data"].(map[string]any)
	ticketID := uint(data["session"].(map[string]any)["ticketId"].(float64))
	assert.NotEmpty(t, data["ticket"].(map[string]any)["ticketNumber"])

	requireCode(t, s.do(t, request{method: http.MethodGet, path: "/api/support-chat/public/tickets"}), http.StatusUnauthorized)

	guest := map[string]string{"Cookie": cookie}
	w = s.do(t, request{method: http.MethodGet, path: "/api/support-chat/public/tickets", header: guest})
	requireCode(t, w, http.StatusOK)
	assert.Len(t, decodeBody(t, w)["data"], 1)

	w = s.do(t, request{method: http.MethodPost, path: "/api/support-chat/public/messages", header: guest,
		body: fmt.Sprintf(`{"ticketId":%d,"body":"Still stuck"}`, ticketID)})
	requireCode(t, w, http.StatusCreated)

	w = s.do(t, request{method: http.MethodGet, path: "/api/support-chat/tickets", as: s.fx.Agent})
	requireCode(t, w, http.StatusOK)
	assert.Len(t, decodeBody(t, w)["data"], 1)

	w = s.do(t, request{method: http.MethodPost, path: "/api/support-chat/messages", as: s.fx.Agent,
		body: fmt.Sprintf(`{"ticketId":%d,"body":"Looking into it"}`, ticketID)})
	requireCode(t, w, http.StatusCreated)

	w = s.do(t, request{method: http.MethodPatch, path: fmt.Sprintf("/api/support-chat/tickets/%d/status", ticketID), as: s.fx.Agent,
		body: `{"status":"SOLVED"}`})
	requireCode(t, w, http.StatusUnprocessableEntity)
}

func TestInternalChatFlow(t *testing.T) {
	s := newTestServer(t)
	body := fmt.Sprintf(`{"workspaceUserId":%d}`, s.fx.Customer.ID)

	w := s.do(t, request{method: http.MethodPost, path: "/api/internal-chat/rooms?type=direct", as: s.fx.Agent, body: body})
	requireCode(t, w, http.StatusCreated)
	roomID := uint(decodeBody(t, w)["data"].(map[string]any)["id"].(float64))

	w = s.do(t, request{method: http.MethodPost, path: "/api/internal-chat/rooms?type=direct", as: s.fx.Agent, body: body})
	requireCode(t, w, http.StatusOK)
	assert.Equal(t, float64(roomID), decodeBody(t, w)["data"].(map[string]any)["id"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/internal-chat/rooms?type=party", as: s.fx.Agent, body: body})
	requireCode(t, w, http.StatusBadRequest)

	for _, text := range []string{"hi", "are you there?"} {
		w = s.do(t, request{method: http.MethodPost, path: "/api/internal-chat/messages", as: s.fx.Agent,
			body: fmt.Sprintf(`{"roomId":%d,"body":%q}`, roomID, text)})
		requireCode(t, w, http.StatusCreated)
	}

	unread := fmt.Sprintf("/api/internal-chat/unread-count/%d", s.fx.Customer.ID)
	w = s.do(t, request{method: http.MethodGet, path: unread, as: s.fx.Customer})
	requireCode(t, w, http.StatusOK)
	assert.Equal(t, float64(2), decodeBody(t, w)["total"])

	requireCode(t, s.do(t, request{method: http.MethodGet, path: unread, as: s.fx.Agent}), http.StatusForbidden)

	w = s.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/api/internal-chat/messages?roomId=%d", roomID), as: s.fx.Customer})
	requireCode(t, w, http.StatusOK)

	w = s.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/api/internal-chat/mark-as-read/%d", roomID), as: s.fx.Customer})
	requireCode(t, w, http.StatusOK)
	assert.Equal(t, float64(2), decodeBody(t, w)["marked"])

	w = s.do(t, request{method: http.MethodGet, path: unread, as: s.fx.Customer})
	requireCode(t, w, http.StatusOK)
	assert.Equal(t, float64(0), decodeBody(t, w)["total"])

	outsider := s.fx.Owner
	w = s.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/api/internal-chat/messages?roomId=%d", roomID), as: outsider})
	requireCode(t, w, http.StatusForbidden)
}
