package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/query"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const moduleSupport = "support-chat"

// Participant is either an authenticated workspace user or a guest
// holding a session token.
type Participant struct {
	Auth  *AuthContext
	Guest *models.GuestUser
}

func (p Participant) IsStaff() bool {
	return p.Guest == nil && p.Auth.IsStaff()
}

func (p Participant) workspaceID() uint {
	if p.Guest != nil {
		return p.Guest.WorkspaceID
	}
	if p.Auth == nil {
		return 0
	}
	return p.Auth.WorkspaceID
}

func (p Participant) check() error {
	if p.Guest != nil {
		return nil
	}
	return requireMember(p.Auth)
}

type CreateTicketInput struct {
	Subject  string            `json:"subject" validate:"required,max=200"`
	Body     string            `json:"body" validate:"required"`
	Priority models.Priority   `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Metadata datatypes.JSONMap `json:"metadata"`
}

type GuestTicketInput struct {
	WorkspaceID uint   `json:"workspaceId" validate:"required"`
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	CreateTicketInput
}

type SupportMessageInput struct {
	TicketID   uint   `json:"ticketId"`
	Body       string `json:"body"`
	IsInternal bool   `json:"isInternal"`
	TempID     string `json:"tempId,omitempty"`
}

type TicketFilter struct {
	Status       string
	Priority     string
	AssignedToID *uint
	Search       string
	Page         int
	Limit        int
}

// SupportMessageView wraps a message with the client's temporary id.
type SupportMessageView struct {
	models.SupportMessage
	TempID string `json:"tempId,omitempty"`
}

// GuestTicket is returned to guests opening a ticket. SessionToken must be
// presented on every later public call.
type GuestTicket struct {
	Ticket       *models.SupportTicket `json:"ticket"`
	Guest        *models.GuestUser     `json:"guest"`
	SessionToken string                `json:"-"`
}

type SupportChatService struct {
	db      *database.Database
	tickets *database.Repository[models.SupportTicket]
	deps    Deps
	log     *logger.Logger
}

func NewSupportChatService(deps Deps) *SupportChatService {
	deps = deps.withDefaults()
	return &SupportChatService{
		db:      deps.DB,
		tickets: database.NewRepository[models.SupportTicket](deps.DB.DB(), "ticket"),
		deps:    deps,
		log:     deps.Logger.Named(moduleSupport),
	}
}

// CreateTicket opens a ticket on behalf of a workspace user together with
// its first message.
func (s *SupportChatService) CreateTicket(ctx context.Context, auth *AuthContext, in CreateTicketInput) (*models.SupportTicket, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	if err := s.checkTicketInput(&in); err != nil {
		return nil, err
	}
	me := auth.WorkspaceUserID()
	ticket := &models.SupportTicket{
		Tenant:          models.Tenant{WorkspaceID: auth.WorkspaceID},
		Subject:         in.Subject,
		Status:          models.TicketOpen,
		Priority:        in.Priority,
		WorkspaceUserID: &me,
		Metadata:        in.Metadata,
	}
	sender := models.SenderCustomer
	if auth.IsStaff() {
		sender = models.SenderAgent
	}
	first := &models.SupportMessage{SenderType: sender, SenderID: &me, Body: in.Body, IsVisible: true}
	if err := s.open(ctx, ticket, first); err != nil {
		return nil, err
	}
	return s.db.GetTicket(ctx, auth.WorkspaceID, ticket.ID)
}

// CreateGuestTicket reuses the workspace guest matching the email, then
// the phone, and creates one otherwise.
func (s *SupportChatService) CreateGuestTicket(ctx context.Context, in GuestTicketInput) (*GuestTicket, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if err := Validate(&in); err != nil {
		return nil, err
	}
	if in.Email == "" && in.Phone == "" {
		return nil, apperror.Validation(map[string][]string{"email": {"email or phone is required"}})
	}
	if err := s.checkTicketInput(&in.CreateTicketInput); err != nil {
		return nil, err
	}
	if _, err := s.db.GetWorkspace(ctx, in.WorkspaceID); err != nil {
		return nil, apperror.FromDB(err, "workspace")
	}

	guest, err := s.db.FindGuest(ctx, in.WorkspaceID, in.Email, in.Phone)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		guest = &models.GuestUser{
			Tenant: models.Tenant{WorkspaceID: in.WorkspaceID},
			Name:   in.Name,
			Email:  in.Email,
			Phone:  in.Phone,
		}
	case err != nil:
		return nil, err
	}
	if guest.SessionToken == "" {
		guest.SessionToken = uuid.NewString()
	}
	if guest.Name == "" {
		guest.Name = in.Name
	}
	if err := s.db.SaveGuest(ctx, guest); err != nil {
		return nil, apperror.FromDB(err, "guest")
	}

	guestID := guest.ID
	ticket := &models.SupportTicket{
		Tenant:      models.Tenant{WorkspaceID: in.WorkspaceID},
		Subject:     in.Subject,
		Status:      models.TicketOpen,
		Priority:    in.Priority,
		GuestUserID: &guestID,
		Metadata:    in.Metadata,
	}
	first := &models.SupportMessage{SenderType: models.SenderGuest, GuestUserID: &guestID, Body: in.Body, IsVisible: true}
	if err := s.open(ctx, ticket, first); err != nil {
		return nil, err
	}
	stored, err := s.db.GetTicket(ctx, in.WorkspaceID, ticket.ID)
	if err != nil {
		return nil, err
	}
	return &GuestTicket{Ticket: stored, Guest: guest, SessionToken: guest.SessionToken}, nil
}

func (s *SupportChatService) checkTicketInput(in *CreateTicketInput) error {
	in.Subject = strings.TrimSpace(in.Subject)
	body, err := messageBody(in.Body)
	if err != nil {
		return err
	}
	in.Body = body
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	return Validate(in)
}

// open numbers and stores the ticket with its first message in one
// transaction.
func (s *SupportChatService) open(ctx context.Context, ticket *models.SupportTicket, first *models.SupportMessage) error {
	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		if err := assignTicketNumber(ctx, tx, ticket); err != nil {
			return err
		}
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			return apperror.FromDB(err, "ticket")
		}
		first.TicketID = ticket.ID
		return tx.SaveSupportMessage(ctx, first)
	})
	if err != nil {
		return err
	}
	metrics.ChatMessages.WithLabelValues("support").Inc()
	s.log.Info("ticket opened",
		zap.Uint("workspace_id", ticket.WorkspaceID),
		zap.String("ticket", ticket.TicketNumber))
	emit(ctx, s.deps, moduleSupport, WorkspaceStaffKey(ticket.WorkspaceID), EventSupportTicket, ticket.ID, ticket)
	return nil
}

// ResolveGuest loads the guest behind a session, comparing the token in
// constant time.
func (s *SupportChatService) ResolveGuest(ctx context.Context, guestID uint, token string) (*models.GuestUser, error) {
	if guestID == 0 || token == "" {
		return nil, apperror.Unauthorized("guest session required")
	}
	guest, err := s.db.GetGuest(ctx, guestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("guest session required")
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(guest.SessionToken), []byte(token)) != 1 {
		return nil, apperror.Unauthorized("guest session required")
	}
	return guest, nil
}

// ListTickets pages the workspace tickets for staff and the caller's own
// tickets for customers.
func (s *SupportChatService) ListTickets(ctx context.Context, auth *AuthContext, f TicketFilter) (*database.Page[models.SupportTicket], error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	b := query.NewBuilder().
		Where("workspaceId", auth.WorkspaceID).
		Search([]string{"subject", "ticketNumber"}, f.Search).
		SetOrderBy("updatedAt", query.Desc).
		SetOrderBy("id", query.Desc).
		SetInclude(map[string]any{
			"GuestUser":     true,
			"WorkspaceUser": map[string]any{"User": true},
			"AssignedTo":    map[string]any{"User": true},
		}).
		SetPagination(f.Page, f.Limit)
	if !auth.IsStaff() {
		b.Where("workspaceUserId", auth.WorkspaceUserID())
	}
	if f.Status != "" {
		b.Where("status", f.Status)
	}
	if f.Priority != "" {
		b.Where("priority", f.Priority)
	}
	if f.AssignedToID != nil {
		b.Where("assignedToId", *f.AssignedToID)
	}
	return s.tickets.FindAll(ctx, b.Build())
}

func (s *SupportChatService) ListGuestTickets(ctx context.Context, guest *models.GuestUser) ([]models.SupportTicket, error) {
	if guest == nil {
		return nil, apperror.Unauthorized("guest session required")
	}
	return s.db.ListGuestTickets(ctx, guest.WorkspaceID, guest.ID)
}

// GetTicket returns the ticket with its conversation. Internal notes are
// only included for staff.
func (s *SupportChatService) GetTicket(ctx context.Context, p Participant, id uint) (*models.SupportTicket, error) {
	ticket, err := s.ticket(ctx, p, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.db.GetTicketMessages(ctx, id, p.IsStaff())
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if !messages[i].IsVisible {
			messages[i].Body = ""
		}
	}
	ticket.Messages = messages
	return ticket, nil
}

// SendMessage appends to the conversation and moves the ticket along:
// the first public agent reply takes an OPEN ticket in progress, and a
// customer reply does the same for a ticket waiting on the customer.
func (s *SupportChatService) SendMessage(ctx context.Context, p Participant, in SupportMessageInput) (*SupportMessageView, error) {
	body, err := messageBody(in.Body)
	if err != nil {
		return nil, err
	}
	ticket, err := s.ticket(ctx, p, in.TicketID)
	if err != nil {
		return nil, err
	}
	staff := p.IsStaff()
	if in.IsInternal && !staff {
		return nil, apperror.Forbidden("only staff can write internal notes")
	}
	if !staff && ticket.Status == models.TicketClosed {
		return nil, apperror.BadRequest("ticket is closed")
	}

	msg := &models.SupportMessage{TicketID: ticket.ID, Body: body, IsInternal: in.IsInternal, IsVisible: true}
	switch {
	case p.Guest != nil:
		msg.SenderType = models.SenderGuest
		msg.GuestUserID = &p.Guest.ID
	case staff:
		me := p.Auth.WorkspaceUserID()
		msg.SenderType, msg.SenderID = models.SenderAgent, &me
	default:
		me := p.Auth.WorkspaceUserID()
		msg.SenderType, msg.SenderID = models.SenderCustomer, &me
	}

	next := ticket.Status
	switch {
	case staff && !in.IsInternal && ticket.Status == models.TicketOpen:
		next = models.TicketInProgress
	case !staff && ticket.Status == models.TicketWaitingCustomer:
		next = models.TicketInProgress
	}

	moved := next != ticket.Status
	err = s.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.SaveSupportMessage(ctx, msg); err != nil {
			return err
		}
		if moved {
			return tx.UpdateTicket(ctx, ticket, map[string]any{"status": next})
		}
		return nil
	})
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	metrics.ChatMessages.WithLabelValues("support").Inc()

	stored, err := s.db.GetSupportMessage(ctx, msg.ID)
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	view := &SupportMessageView{SupportMessage: *stored, TempID: in.TempID}
	emit(ctx, s.deps, moduleSupport, messageKey(stored), EventSupportMessage, stored.ID, view)
	if moved {
		ticket.Status = next
		s.emitTicket(ctx, ticket)
	}
	return view, nil
}

// EditMessage changes the body of the participant's own visible message.
func (s *SupportChatService) EditMessage(ctx context.Context, p Participant, id uint, body string) (*models.SupportMessage, error) {
	text, err := messageBody(body)
	if err != nil {
		return nil, err
	}
	msg, err := s.ownMessage(ctx, p, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	msg.Body, msg.IsEdited, msg.EditedAt = text, true, &now
	if err := s.db.UpdateSupportMessage(ctx, msg, "Body", "IsEdited", "EditedAt"); err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	emit(ctx, s.deps, moduleSupport, messageKey(msg), EventSupportMessageEdited, msg.ID, msg)
	return msg, nil
}

func (s *SupportChatService) DeleteMessage(ctx context.Context, p Participant, id uint) error {
	msg, err := s.ownMessage(ctx, p, id)
	if err != nil {
		return err
	}
	msg.IsVisible = false
	if err := s.db.UpdateSupportMessage(ctx, msg, "IsVisible"); err != nil {
		return apperror.FromDB(err, "message")
	}
	emit(ctx, s.deps, moduleSupport, messageKey(msg), EventSupportMessageDeleted, msg.ID, map[string]any{
		"id": msg.ID, "ticketId": msg.TicketID,
	})
	return nil
}

func (s *SupportChatService) ownMessage(ctx context.Context, p Participant, id uint) (*models.SupportMessage, error) {
	msg, err := s.db.GetSupportMessage(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	if _, err := s.ticket(ctx, p, msg.TicketID); err != nil {
		return nil, err
	}
	var own bool
	if p.Guest != nil {
		own = msg.GuestUserID != nil && *msg.GuestUserID == p.Guest.ID
	} else {
		own = msg.SenderID != nil && *msg.SenderID == p.Auth.WorkspaceUserID()
	}
	if !own {
		return nil, apperror.Forbidden("only the sender can change a message")
	}
	if !msg.IsVisible {
		return nil, apperror.BadRequest("message was deleted")
	}
	return msg, nil
}

// Assign hands the ticket to a staff member; nil unassigns it.
func (s *SupportChatService) Assign(ctx context.Context, auth *AuthContext, id uint, assigneeID *uint) (*models.SupportTicket, error) {
	ticket, err := s.staffTicket(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	if assigneeID != nil {
		wu, err := s.db.GetWorkspaceUserByID(ctx, auth.WorkspaceID, *assigneeID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Validation(map[string][]string{"assignedToId": {"not found"}})
		}
		if err != nil {
			return nil, err
		}
		if !wu.Role.IsStaff() {
			return nil, apperror.Validation(map[string][]string{"assignedToId": {"must be a staff member"}})
		}
	}
	return s.change(ctx, auth, ticket, map[string]any{"assigned_to_id": assigneeID})
}

func (s *SupportChatService) UpdateStatus(ctx context.Context, auth *AuthContext, id uint, status models.TicketStatus) (*models.SupportTicket, error) {
	ticket, err := s.staffTicket(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	switch status {
	case models.TicketOpen, models.TicketInProgress, models.TicketWaitingCustomer,
		models.TicketResolved, models.TicketClosed:
	default:
		return nil, apperror.Validation(map[string][]string{
			"status": {"must be one of: OPEN, IN_PROGRESS, WAITING_CUSTOMER, RESOLVED, CLOSED"},
		})
	}
	ticket.Status = status
	setClosedAt(ticket)
	return s.change(ctx, auth, ticket, map[string]any{"status": status, "closed_at": ticket.ClosedAt})
}

func (s *SupportChatService) UpdatePriority(ctx context.Context, auth *AuthContext, id uint, priority models.Priority) (*models.SupportTicket, error) {
	ticket, err := s.staffTicket(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	switch priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
	default:
		return nil, apperror.Validation(map[string][]string{
			"priority": {"must be one of: LOW, MEDIUM, HIGH, URGENT"},
		})
	}
	return s.change(ctx, auth, ticket, map[string]any{"priority": priority})
}

func (s *SupportChatService) change(ctx context.Context, auth *AuthContext, ticket *models.SupportTicket, fields map[string]any) (*models.SupportTicket, error) {
	if err := s.db.UpdateTicket(ctx, ticket, fields); err != nil {
		return nil, apperror.FromDB(err, "ticket")
	}
	stored, err := s.db.GetTicket(ctx, auth.WorkspaceID, ticket.ID)
	if err != nil {
		return nil, apperror.FromDB(err, "ticket")
	}
	s.emitTicket(ctx, stored)
	return stored, nil
}

func (s *SupportChatService) emitTicket(ctx context.Context, t *models.SupportTicket) {
	emit(ctx, s.deps, moduleSupport, TicketRoomKey(t.ID), EventSupportTicket, t.ID, t)
	emit(ctx, s.deps, moduleSupport, WorkspaceStaffKey(t.WorkspaceID), EventSupportTicket, t.ID, t)
}

// MarkRead stamps ReadAt on messages from the other side and returns how
// many were marked.
func (s *SupportChatService) MarkRead(ctx context.Context, p Participant, ticketID uint) (int64, error) {
	if _, err := s.ticket(ctx, p, ticketID); err != nil {
		return 0, err
	}
	n, err := s.db.MarkTicketRead(ctx, ticketID, p.IsStaff())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		emit(ctx, s.deps, moduleSupport, TicketRoomKey(ticketID), EventSupportRead, ticketID, map[string]any{
			"ticketId": ticketID, "staff": p.IsStaff(), "count": n,
		})
	}
	return n, nil
}

// UnreadCount counts unread messages across every ticket the participant
// can see.
func (s *SupportChatService) UnreadCount(ctx context.Context, p Participant) (int64, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	tickets := s.db.TicketsQuery(ctx, p.workspaceID())
	switch {
	case p.Guest != nil:
		tickets = tickets.Where("guest_user_id = ?", p.Guest.ID)
	case !p.Auth.IsStaff():
		tickets = tickets.Where("workspace_user_id = ?", p.Auth.WorkspaceUserID())
	}
	return s.db.CountUnreadSupport(ctx, tickets, p.IsStaff())
}

// CanJoin authorizes a socket subscription to a ticket. staff reports
// whether the internal-note channel may be joined as well.
func (s *SupportChatService) CanJoin(ctx context.Context, p Participant, ticketID uint) (staff bool, err error) {
	if _, err := s.ticket(ctx, p, ticketID); err != nil {
		return false, err
	}
	return p.IsStaff(), nil
}

// ticket loads a ticket the participant may see: any workspace ticket for
// staff, otherwise only tickets they opened.
func (s *SupportChatService) ticket(ctx context.Context, p Participant, id uint) (*models.SupportTicket, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	t, err := s.db.GetTicket(ctx, p.workspaceID(), id)
	if err != nil {
		return nil, apperror.FromDB(err, "ticket")
	}
	switch {
	case p.Guest != nil:
		if t.GuestUserID == nil || *t.GuestUserID != p.Guest.ID {
			return nil, apperror.NotFound("ticket")
		}
	case !p.Auth.IsStaff():
		if t.WorkspaceUserID == nil || *t.WorkspaceUserID != p.Auth.WorkspaceUserID() {
			return nil, apperror.Forbidden("not allowed to access this ticket")
		}
	}
	return t, nil
}

func (s *SupportChatService) staffTicket(ctx context.Context, auth *AuthContext, id uint) (*models.SupportTicket, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	if !auth.IsStaff() {
		return nil, apperror.Forbidden("staff role required")
	}
	return s.ticket(ctx, Participant{Auth: auth}, id)
}

func messageKey(m *models.SupportMessage) string {
	if m.IsInternal {
		return TicketStaffKey(m.TicketID)
	}
	return TicketRoomKey(m.TicketID)
}
