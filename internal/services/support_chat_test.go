package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/models"
)

func guestTicket(t *testing.T, e *env, svc *SupportChatService, email, subject string) *GuestTicket {
	t.Helper()
	out, err := svc.CreateGuestTicket(context.Background(), GuestTicketInput{
		WorkspaceID:       e.fx.Workspace.ID,
		Name:              "Visitor",
		Email:             email,
		CreateTicketInput: CreateTicketInput{Subject: subject, Body: "It does not work"},
	})
	require.NoError(t, err)
	return out
}

func TestGuestTicketsReuseGuestAndNumberSequentially(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)

	first := guestTicket(t, e, svc, "Visitor@Example.com ", "Printer")
	second := guestTicket(t, e, svc, "visitor@example.com", "Scanner")

	assert.Equal(t, "ACM-000001", first.Ticket.TicketNumber)
	assert.Equal(t, "ACM-000002", second.Ticket.TicketNumber)
	assert.Equal(t, 2, second.Ticket.Number)
	assert.Equal(t, models.TicketOpen, first.Ticket.Status)
	assert.Equal(t, models.PriorityMedium, first.Ticket.Priority)

	assert.Equal(t, first.Guest.ID, second.Guest.ID)
	assert.Equal(t, "visitor@example.com", second.Guest.Email)
	assert.NotEmpty(t, first.SessionToken)
	assert.Equal(t, first.SessionToken, second.SessionToken)

	assert.Contains(t, e.rec.events(WorkspaceStaffKey(e.fx.Workspace.ID)), EventSupportTicket)

	tickets, err := svc.ListGuestTickets(context.Background(), second.Guest)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestGuestTicketNeedsContact(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)

	_, err := svc.CreateGuestTicket(context.Background(), GuestTicketInput{
		WorkspaceID:       e.fx.Workspace.ID,
		Name:              "Visitor",
		CreateTicketInput: CreateTicketInput{Subject: "Hi", Body: "Hello"},
	})
	appErr := requireStatus(t, err, http.StatusUnprocessableEntity)
	assert.Contains(t, appErr.Errors, "email")

	_, err = svc.CreateGuestTicket(context.Background(), GuestTicketInput{
		WorkspaceID:       e.fx.Workspace.ID + 100,
		Name:              "Visitor",
		Phone:             "+15550100",
		CreateTicketInput: CreateTicketInput{Subject: "Hi", Body: "Hello"},
	})
	requireStatus(t, err, http.StatusNotFound)
}

func TestResolveGuest(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	gt := guestTicket(t, e, svc, "guest@example.com", "Help")

	guest, err := svc.ResolveGuest(ctx, gt.Guest.ID, gt.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, gt.Guest.ID, guest.ID)

	_, err = svc.ResolveGuest(ctx, gt.Guest.ID, "forged")
	requireStatus(t, err, http.StatusUnauthorized)
	_, err = svc.ResolveGuest(ctx, 9999, gt.SessionToken)
	requireStatus(t, err, http.StatusUnauthorized)
	_, err = svc.ResolveGuest(ctx, gt.Guest.ID, "")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestAgentReplyMovesTicketInProgress(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	gt := guestTicket(t, e, svc, "guest@example.com", "Help")
	agent := Participant{Auth: e.as(e.fx.Agent)}

	note, err := svc.SendMessage(ctx, agent, SupportMessageInput{TicketID: gt.Ticket.ID, Body: "VIP customer", IsInternal: true})
	require.NoError(t, err)
	assert.Equal(t, models.SenderAgent, note.SenderType)
	assert.Contains(t, e.rec.events(TicketStaffKey(gt.Ticket.ID)), EventSupportMessage)

	ticket, err := svc.GetTicket(ctx, agent, gt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketOpen, ticket.Status)

	reply, err := svc.SendMessage(ctx, agent, SupportMessageInput{TicketID: gt.Ticket.ID, Body: "On it", TempID: "t-9"})
	require.NoError(t, err)
	assert.Equal(t, "t-9", reply.TempID)
	assert.Contains(t, e.rec.events(TicketRoomKey(gt.Ticket.ID)), EventSupportTicket)

	ticket, err = svc.GetTicket(ctx, agent, gt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketInProgress, ticket.Status)
	assert.Len(t, ticket.Messages, 3)

	guestView, err := svc.GetTicket(ctx, Participant{Guest: gt.Guest}, gt.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, guestView.Messages, 2)
	for _, m := range guestView.Messages {
		assert.False(t, m.IsInternal)
	}

	unread, err := svc.UnreadCount(ctx, Participant{Guest: gt.Guest})
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
	n, err := svc.MarkRead(ctx, Participant{Guest: gt.Guest}, gt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	unread, err = svc.UnreadCount(ctx, Participant{Guest: gt.Guest})
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestCustomerTicketAccess(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	customer := Participant{Auth: e.as(e.fx.Customer)}

	ticket, err := svc.CreateTicket(ctx, customer.Auth, CreateTicketInput{Subject: "Invoice", Body: "Wrong total", Priority: models.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, "ACM-000001", ticket.TicketNumber)
	assert.Equal(t, models.PriorityHigh, ticket.Priority)

	_, err = svc.SendMessage(ctx, customer, SupportMessageInput{TicketID: ticket.ID, Body: "psst", IsInternal: true})
	requireStatus(t, err, http.StatusForbidden)

	other := Participant{Auth: e.as(e.fx.Owner)}
	staffTicket, err := svc.CreateTicket(ctx, other.Auth, CreateTicketInput{Subject: "Internal", Body: "Mine"})
	require.NoError(t, err)
	_, err = svc.GetTicket(ctx, customer, staffTicket.ID)
	requireStatus(t, err, http.StatusForbidden)

	page, err := svc.ListTickets(ctx, customer.Auth, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, ticket.ID, page.Data[0].ID)

	page, err = svc.ListTickets(ctx, other.Auth, TicketFilter{Priority: "HIGH"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, ticket.ID, page.Data[0].ID)

	_, err = svc.UpdateStatus(ctx, customer.Auth, ticket.ID, models.TicketClosed)
	requireStatus(t, err, http.StatusForbidden)
}

func TestClosedTicketRejectsCustomer(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	gt := guestTicket(t, e, svc, "guest@example.com", "Help")
	guest := Participant{Guest: gt.Guest}
	staff := e.as(e.fx.Agent)

	closed, err := svc.UpdateStatus(ctx, staff, gt.Ticket.ID, models.TicketClosed)
	require.NoError(t, err)
	assert.Equal(t, models.TicketClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = svc.SendMessage(ctx, guest, SupportMessageInput{TicketID: gt.Ticket.ID, Body: "hello?"})
	appErr := requireStatus(t, err, http.StatusBadRequest)
	assert.Equal(t, "ticket is closed", appErr.Message)

	_, err = svc.SendMessage(ctx, Participant{Auth: staff}, SupportMessageInput{TicketID: gt.Ticket.ID, Body: "Reopening"})
	require.NoError(t, err)

	reopened, err := svc.UpdateStatus(ctx, staff, gt.Ticket.ID, models.TicketWaitingCustomer)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)

	_, err = svc.SendMessage(ctx, guest, SupportMessageInput{TicketID: gt.Ticket.ID, Body: "thanks"})
	require.NoError(t, err)
	ticket, err := svc.GetTicket(ctx, guest, gt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketInProgress, ticket.Status)

	_, err = svc.UpdateStatus(ctx, staff, gt.Ticket.ID, "ARCHIVED")
	requireStatus(t, err, http.StatusUnprocessableEntity)
}

func TestGuestCannotSeeOtherGuestsTicket(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	mine := guestTicket(t, e, svc, "one@example.com", "Mine")
	theirs := guestTicket(t, e, svc, "two@example.com", "Theirs")

	_, err := svc.GetTicket(ctx, Participant{Guest: mine.Guest}, theirs.Ticket.ID)
	requireStatus(t, err, http.StatusNotFound)

	staff, err := svc.CanJoin(ctx, Participant{Guest: mine.Guest}, mine.Ticket.ID)
	require.NoError(t, err)
	assert.False(t, staff)
	staff, err = svc.CanJoin(ctx, Participant{Auth: e.as(e.fx.Agent)}, mine.Ticket.ID)
	require.NoError(t, err)
	assert.True(t, staff)
}

func TestAssignRequiresStaff(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	gt := guestTicket(t, e, svc, "guest@example.com", "Help")
	owner := e.as(e.fx.Owner)

	_, err := svc.Assign(ctx, owner, gt.Ticket.ID, &e.fx.Customer.ID)
	appErr := requireStatus(t, err, http.StatusUnprocessableEntity)
	assert.Contains(t, appErr.Errors, "assignedToId")

	assigned, err := svc.Assign(ctx, owner, gt.Ticket.ID, &e.fx.Agent.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, e.fx.Agent.ID, assigned.AssignedTo.ID)

	unassigned, err := svc.Assign(ctx, owner, gt.Ticket.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, unassigned.AssignedToID)
	assert.Nil(t, unassigned.AssignedTo)

	var stored models.SupportTicket
	require.NoError(t, e.db.DB().First(&stored, gt.Ticket.ID).Error)
	assert.Nil(t, stored.AssignedToID)
}

func TestSupportMessageOwnership(t *testing.T) {
	e := newEnv(t)
	svc := NewSupportChatService(e.deps)
	ctx := context.Background()
	gt := guestTicket(t, e, svc, "guest@example.com", "Help")
	guest := Participant{Guest: gt.Guest}
	agent := Participant{Auth: e.as(e.fx.Agent)}

	msg, err := svc.SendMessage(ctx, guest, SupportMessageInput{TicketID: gt.Ticket.ID, Body: "typo"})
	require.NoError(t, err)
	assert.Equal(t, models.SenderGuest, msg.SenderType)

	_, err = svc.EditMessage(ctx, agent, msg.ID, "changed")
	requireStatus(t, err, http.StatusForbidden)

	edited, err := svc.EditMessage(ctx, guest, msg.ID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Body)
	assert.True(t, edited.IsEdited)

	require.NoError(t, svc.DeleteMessage(ctx, guest, msg.ID))
	ticket, err := svc.GetTicket(ctx, agent, gt.Ticket.ID)
	require.NoError(t, err)
	last := ticket.Messages[len(ticket.Messages)-1]
	assert.False(t, last.IsVisible)
	assert.Empty(t, last.Body)
}
