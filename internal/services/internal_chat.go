package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/query"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	RoomTypeDirect = "direct"
	RoomTypeTeam   = "team"
	RoomTypeSelf   = "self"

	maxMessageLength = 4000
	moduleInternal   = "internal-chat"
)

type CreateRoomInput struct {
	// WorkspaceUserID is the other participant of a direct room.
	WorkspaceUserID uint   `json:"workspaceUserId"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	MemberIDs       []uint `json:"memberIds"`
}

type UpdateRoomInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type SendMessageInput struct {
	RoomID    uint   `json:"roomId"`
	Body      string `json:"body"`
	ReplyToID *uint  `json:"replyToId"`
	TempID    string `json:"tempId,omitempty"`
}

// RoomView is a room as seen by one member.
type RoomView struct {
	models.ChatRoom
	Name        string       `json:"name"`
	LastMessage *MessageView `json:"lastMessage,omitempty"`
	UnreadCount int64        `json:"unreadCount"`
}

type MessageView struct {
	models.ChatMessage
	IsMine bool   `json:"isMine"`
	IsRead bool   `json:"isRead"`
	TempID string `json:"tempId,omitempty"`
}

type Contact struct {
	models.WorkspaceUser
	DirectRoomID *uint `json:"directRoomId"`
}

type UnreadSummary struct {
	Total int64          `json:"total"`
	Rooms map[uint]int64 `json:"rooms"`
}

type InternalChatService struct {
	db   *database.Database
	deps Deps
	log  *logger.Logger
}

func NewInternalChatService(deps Deps) *InternalChatService {
	deps = deps.withDefaults()
	return &InternalChatService{db: deps.DB, deps: deps, log: deps.Logger.Named(moduleInternal)}
}

// CreateRoom dispatches on kind: direct, team or self.
func (s *InternalChatService) CreateRoom(ctx context.Context, auth *AuthContext, kind string, in CreateRoomInput) (*RoomView, bool, error) {
	switch kind {
	case RoomTypeDirect, "":
		return s.CreateDirectRoom(ctx, auth, in.WorkspaceUserID)
	case RoomTypeTeam:
		room, err := s.CreateTeamRoom(ctx, auth, in)
		return room, err == nil, err
	case RoomTypeSelf:
		return s.GetSelfRoom(ctx, auth)
	}
	return nil, false, apperror.BadRequest("unknown room type %q", kind)
}

// CreateDirectRoom returns the direct room between the caller and other,
// creating it on first use. created reports whether this call created it.
func (s *InternalChatService) CreateDirectRoom(ctx context.Context, auth *AuthContext, other uint) (*RoomView, bool, error) {
	if err := requireMember(auth); err != nil {
		return nil, false, err
	}
	me := auth.WorkspaceUserID()
	if other == 0 {
		return nil, false, apperror.Validation(map[string][]string{"workspaceUserId": {"is required"}})
	}
	if other == me {
		return s.GetSelfRoom(ctx, auth)
	}
	if _, err := s.db.GetWorkspaceUserByID(ctx, auth.WorkspaceID, other); err != nil {
		return nil, false, apperror.FromDB(err, "workspace user")
	}
	now := time.Now().UTC()
	room, created, err := s.findOrCreate(ctx, auth, models.DirectPairKey(me, other), models.RoomDirect, []models.ChatRoomMember{
		{WorkspaceUserID: me, Role: models.MemberMember, JoinedAt: now},
		{WorkspaceUserID: other, Role: models.MemberMember, JoinedAt: now},
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		emit(ctx, s.deps, moduleInternal, WorkspaceUserKey(other), EventInternalRoom, room.ID, room)
	}
	view, err := s.view(ctx, auth, room)
	return view, created, err
}

// GetSelfRoom returns the caller's personal notes room.
func (s *InternalChatService) GetSelfRoom(ctx context.Context, auth *AuthContext) (*RoomView, bool, error) {
	if err := requireMember(auth); err != nil {
		return nil, false, err
	}
	me := auth.WorkspaceUserID()
	room, created, err := s.findOrCreate(ctx, auth, models.SelfPairKey(me), models.RoomSelf, []models.ChatRoomMember{
		{WorkspaceUserID: me, Role: models.MemberOwner, JoinedAt: time.Now().UTC()},
	})
	if err != nil {
		return nil, false, err
	}
	view, err := s.view(ctx, auth, room)
	return view, created, err
}

// findOrCreate relies on the unique pair key: when a concurrent caller
// wins the insert, the loser reads the winner's row.
func (s *InternalChatService) findOrCreate(ctx context.Context, auth *AuthContext, key string, kind models.RoomKind, members []models.ChatRoomMember) (*models.ChatRoom, bool, error) {
	room, err := s.db.FindRoomByPairKey(ctx, auth.WorkspaceID, key)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	room = &models.ChatRoom{
		WorkspaceID: auth.WorkspaceID,
		Kind:        kind,
		CreatedByID: auth.WorkspaceUserID(),
		PairKey:     &key,
		Members:     members,
	}
	err = s.db.Transaction(ctx, func(tx *database.Database) error {
		return tx.CreateRoom(ctx, room)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		room, err = s.db.FindRoomByPairKey(ctx, auth.WorkspaceID, key)
		return room, false, apperror.FromDB(err, "room")
	}
	if err != nil {
		return nil, false, err
	}
	return room, true, nil
}

func (s *InternalChatService) CreateTeamRoom(ctx context.Context, auth *AuthContext, in CreateRoomInput) (*RoomView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperror.Validation(map[string][]string{"title": {"is required"}})
	}
	me := auth.WorkspaceUserID()
	ids := withoutID(dedupe(in.MemberIDs), me)
	if err := s.checkWorkspaceUsers(ctx, auth, ids); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	members := []models.ChatRoomMember{{WorkspaceUserID: me, Role: models.MemberOwner, JoinedAt: now}}
	for _, id := range ids {
		members = append(members, models.ChatRoomMember{WorkspaceUserID: id, Role: models.MemberMember, JoinedAt: now})
	}
	room := &models.ChatRoom{
		WorkspaceID: auth.WorkspaceID,
		Kind:        models.RoomTeam,
		Title:       in.Title,
		Description: in.Description,
		CreatedByID: me,
		Members:     members,
	}
	if err := s.db.CreateRoom(ctx, room); err != nil {
		return nil, apperror.FromDB(err, "room")
	}
	for _, id := range ids {
		emit(ctx, s.deps, moduleInternal, WorkspaceUserKey(id), EventInternalRoom, room.ID, room)
	}
	return s.GetRoom(ctx, auth, room.ID)
}

// ListRooms returns the caller's rooms with their last message and unread
// count.
func (s *InternalChatService) ListRooms(ctx context.Context, auth *AuthContext) ([]RoomView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	me := auth.WorkspaceUserID()
	rooms, err := s.db.GetMemberRooms(ctx, me)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	last, err := s.db.GetLastMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	unread, err := s.db.CountUnread(ctx, me)
	if err != nil {
		return nil, err
	}

	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		v := RoomView{ChatRoom: r, Name: roomName(&r, me), UnreadCount: unread[r.ID]}
		if msg, ok := last[r.ID]; ok {
			lv := MessageView{ChatMessage: hide(msg), IsMine: msg.SenderID == me}
			v.LastMessage = &lv
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *InternalChatService) GetRoom(ctx context.Context, auth *AuthContext, id uint) (*RoomView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	room, _, err := s.memberRoom(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, auth, room)
}

func (s *InternalChatService) UpdateRoom(ctx context.Context, auth *AuthContext, id uint, in UpdateRoomInput) (*RoomView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	room, member, err := s.memberRoom(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	if err := requireTeamAdmin(room, member); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperror.Validation(map[string][]string{"title": {"is required"}})
		}
		fields["title"] = title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if len(fields) > 0 {
		if err := s.db.UpdateRoom(ctx, room, fields); err != nil {
			return nil, apperror.FromDB(err, "room")
		}
	}
	view, err := s.GetRoom(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(id), EventInternalRoom, id, view.ChatRoom)
	return view, nil
}

// AddMembers adds workspace users to a team room. Existing members are
// left untouched.
func (s *InternalChatService) AddMembers(ctx context.Context, auth *AuthContext, roomID uint, ids []uint) (*RoomView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	room, member, err := s.memberRoom(ctx, auth, roomID)
	if err != nil {
		return nil, err
	}
	if err := requireTeamAdmin(room, member); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperror.Validation(map[string][]string{"memberIds": {"is required"}})
	}
	if err := s.checkWorkspaceUsers(ctx, auth, ids); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	err = s.db.Transaction(ctx, func(tx *database.Database) error {
		for _, id := range ids {
			m := &models.ChatRoomMember{RoomID: roomID, WorkspaceUserID: id, Role: models.MemberMember, JoinedAt: now}
			if err := tx.AddRoomMember(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperror.FromDB(err, "member")
	}
	view, err := s.GetRoom(ctx, auth, roomID)
	if err != nil {
		return nil, err
	}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(roomID), EventInternalMembers, roomID, view.Members)
	for _, id := range ids {
		emit(ctx, s.deps, moduleInternal, WorkspaceUserKey(id), EventInternalRoom, roomID, view.ChatRoom)
	}
	return view, nil
}

// RemoveMember removes workspaceUserID from a team room. Admins may remove
// others; anyone may remove themselves.
func (s *InternalChatService) RemoveMember(ctx context.Context, auth *AuthContext, roomID, workspaceUserID uint) error {
	if err := requireMember(auth); err != nil {
		return err
	}
	if workspaceUserID == auth.WorkspaceUserID() {
		return s.LeaveRoom(ctx, auth, roomID)
	}
	room, member, err := s.memberRoom(ctx, auth, roomID)
	if err != nil {
		return err
	}
	if err := requireTeamAdmin(room, member); err != nil {
		return err
	}
	target, err := s.db.GetMembership(ctx, roomID, workspaceUserID)
	if err != nil {
		return apperror.FromDB(err, "member")
	}
	if target.Role == models.MemberOwner {
		return apperror.Forbidden("the room owner cannot be removed")
	}
	if err := s.db.RemoveRoomMember(ctx, target.ID); err != nil {
		return err
	}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(roomID), EventInternalMembers, roomID, map[string]any{
		"roomId": roomID, "removed": workspaceUserID,
	})
	evict(ctx, s.deps, moduleInternal, InternalRoomKey(roomID), workspaceUserID)
	return nil
}

// LeaveRoom deletes the caller's membership and its read receipts. When the
// owner leaves, the longest standing member takes over.
func (s *InternalChatService) LeaveRoom(ctx context.Context, auth *AuthContext, roomID uint) error {
	if err := requireMember(auth); err != nil {
		return err
	}
	room, member, err := s.memberRoom(ctx, auth, roomID)
	if err != nil {
		return err
	}
	if room.Kind != models.RoomTeam {
		return apperror.BadRequest("only team rooms can be left")
	}
	err = s.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.RemoveRoomMember(ctx, member.ID); err != nil {
			return err
		}
		if member.Role != models.MemberOwner {
			return nil
		}
		for _, m := range room.Members {
			if m.ID != member.ID {
				next := m
				return tx.UpdateRoomMember(ctx, &next, map[string]any{"role": models.MemberOwner})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(roomID), EventInternalMembers, roomID, map[string]any{
		"roomId": roomID, "removed": member.WorkspaceUserID,
	})
	evict(ctx, s.deps, moduleInternal, InternalRoomKey(roomID), member.WorkspaceUserID)
	return nil
}

// ListContacts returns the active workspace users other than the caller,
// with the id of the direct room shared with each, if any.
func (s *InternalChatService) ListContacts(ctx context.Context, auth *AuthContext) ([]Contact, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	me := auth.WorkspaceUserID()
	users, err := s.db.ListWorkspaceUsers(ctx, auth.WorkspaceID)
	if err != nil {
		return nil, err
	}
	direct, err := s.db.DirectRoomsOf(ctx, me)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(users))
	for _, wu := range users {
		if wu.ID == me {
			continue
		}
		c := Contact{WorkspaceUser: wu}
		if id, ok := direct[wu.ID]; ok {
			roomID := id
			c.DirectRoomID = &roomID
		}
		out = append(out, c)
	}
	return out, nil
}

// ListMessages returns a page of room messages, newest first, with isRead
// computed for the caller.
func (s *InternalChatService) ListMessages(ctx context.Context, auth *AuthContext, roomID uint, page, limit int) (*database.Page[MessageView], error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	room, member, err := s.memberRoom(ctx, auth, roomID)
	if err != nil {
		return nil, err
	}
	q := query.NewBuilder().SetPagination(page, limit).Build()
	messages, total, err := s.db.GetRoomMessages(ctx, roomID, q.Skip, q.Take)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	receipts, err := s.db.GetReceipts(ctx, ids)
	if err != nil {
		return nil, err
	}

	me := auth.WorkspaceUserID()
	data := make([]MessageView, len(messages))
	for i, m := range messages {
		data[i] = MessageView{
			ChatMessage: hide(m),
			IsMine:      m.SenderID == me,
			IsRead:      isRead(room, member, &m, receipts[m.ID]),
		}
	}
	return &database.Page[MessageView]{
		Data: data,
		Pagination: database.Pagination{
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(q.Take))),
			Page:  q.Skip/q.Take + 1,
			Limit: q.Take,
		},
	}, nil
}

// isRead: a self room is always read; the caller's own message is read
// once every other current member has a receipt for it; anyone else's
// message is read once the caller's membership has a receipt.
func isRead(room *models.ChatRoom, me *models.ChatRoomMember, msg *models.ChatMessage, readers map[uint]bool) bool {
	if room.Kind == models.RoomSelf {
		return true
	}
	if msg.SenderID != me.WorkspaceUserID {
		return readers[me.ID]
	}
	for _, m := range room.Members {
		if m.ID != me.ID && !readers[m.ID] {
			return false
		}
	}
	return true
}

func (s *InternalChatService) SendMessage(ctx context.Context, auth *AuthContext, in SendMessageInput) (*MessageView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	body, err := messageBody(in.Body)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.memberRoom(ctx, auth, in.RoomID); err != nil {
		return nil, err
	}
	if in.ReplyToID != nil {
		parent, err := s.db.GetMessage(ctx, *in.ReplyToID)
		if err != nil || parent.RoomID != in.RoomID {
			return nil, apperror.Validation(map[string][]string{"replyToId": {"not found in this room"}})
		}
	}

	msg := &models.ChatMessage{
		RoomID:    in.RoomID,
		SenderID:  auth.WorkspaceUserID(),
		Body:      body,
		ReplyToID: in.ReplyToID,
		IsVisible: true,
	}
	if err := s.db.SaveMessage(ctx, msg); err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	metrics.ChatMessages.WithLabelValues("internal").Inc()

	stored, err := s.db.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	view := &MessageView{ChatMessage: hide(*stored), IsMine: true, TempID: in.TempID}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(in.RoomID), EventInternalMessage, msg.ID, view)
	return view, nil
}

// EditMessage changes the body of one of the caller's visible messages.
func (s *InternalChatService) EditMessage(ctx context.Context, auth *AuthContext, id uint, body string) (*MessageView, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	text, err := messageBody(body)
	if err != nil {
		return nil, err
	}
	msg, err := s.ownMessage(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	msg.Body, msg.IsEdited, msg.EditedAt = text, true, &now
	if err := s.db.UpdateMessage(ctx, msg, "Body", "IsEdited", "EditedAt"); err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	view := &MessageView{ChatMessage: hide(*msg), IsMine: true}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(msg.RoomID), EventInternalMessageEdited, msg.ID, view)
	return view, nil
}

// DeleteMessage hides one of the caller's messages.
func (s *InternalChatService) DeleteMessage(ctx context.Context, auth *AuthContext, id uint) error {
	if err := requireMember(auth); err != nil {
		return err
	}
	msg, err := s.ownMessage(ctx, auth, id)
	if err != nil {
		return err
	}
	msg.IsVisible = false
	if err := s.db.UpdateMessage(ctx, msg, "IsVisible"); err != nil {
		return apperror.FromDB(err, "message")
	}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(msg.RoomID), EventInternalMessageDeleted, msg.ID, map[string]any{
		"id": msg.ID, "roomId": msg.RoomID,
	})
	return nil
}

func (s *InternalChatService) ownMessage(ctx context.Context, auth *AuthContext, id uint) (*models.ChatMessage, error) {
	msg, err := s.db.GetMessage(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	if _, _, err := s.memberRoom(ctx, auth, msg.RoomID); err != nil {
		return nil, err
	}
	if msg.SenderID != auth.WorkspaceUserID() {
		return nil, apperror.Forbidden("only the sender can change a message")
	}
	if !msg.IsVisible {
		return nil, apperror.BadRequest("message was deleted")
	}
	return msg, nil
}

// MarkAsRead records receipts for every unread visible message from
// others in the room and returns how many were marked.
func (s *InternalChatService) MarkAsRead(ctx context.Context, auth *AuthContext, roomID uint) (int, error) {
	if err := requireMember(auth); err != nil {
		return 0, err
	}
	_, member, err := s.memberRoom(ctx, auth, roomID)
	if err != nil {
		return 0, err
	}
	ids, err := s.db.GetUnreadMessageIDs(ctx, member)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	receipts := make([]models.ChatReadReceipt, len(ids))
	for i, id := range ids {
		receipts[i] = models.ChatReadReceipt{MessageID: id, MemberID: member.ID, ReadAt: now}
	}
	if err := s.db.SaveReceipts(ctx, receipts); err != nil {
		return 0, err
	}
	emit(ctx, s.deps, moduleInternal, InternalRoomKey(roomID), EventInternalRead, roomID, map[string]any{
		"roomId":          roomID,
		"workspaceUserId": member.WorkspaceUserID,
		"messageIds":      ids,
	})
	return len(ids), nil
}

// UnreadCount reports unread messages of workspaceUserID per room. Only
// the user themselves or a workspace admin may ask.
func (s *InternalChatService) UnreadCount(ctx context.Context, auth *AuthContext, workspaceUserID uint) (*UnreadSummary, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	if workspaceUserID != auth.WorkspaceUserID() {
		if !auth.IsAdmin() {
			return nil, apperror.Forbidden("cannot read another user's unread count")
		}
		if _, err := s.db.GetWorkspaceUserByID(ctx, auth.WorkspaceID, workspaceUserID); err != nil {
			return nil, apperror.FromDB(err, "workspace user")
		}
	}
	rooms, err := s.db.CountUnread(ctx, workspaceUserID)
	if err != nil {
		return nil, err
	}
	sum := &UnreadSummary{Rooms: rooms}
	for _, n := range rooms {
		sum.Total += n
	}
	return sum, nil
}

// CanJoin reports whether the caller may subscribe to the room's events.
func (s *InternalChatService) CanJoin(ctx context.Context, auth *AuthContext, roomID uint) error {
	if err := requireMember(auth); err != nil {
		return err
	}
	_, _, err := s.memberRoom(ctx, auth, roomID)
	return err
}

// memberRoom loads a room of the caller's workspace and the caller's
// membership in it.
func (s *InternalChatService) memberRoom(ctx context.Context, auth *AuthContext, roomID uint) (*models.ChatRoom, *models.ChatRoomMember, error) {
	room, err := s.db.GetRoom(ctx, auth.WorkspaceID, roomID)
	if err != nil {
		return nil, nil, apperror.FromDB(err, "room")
	}
	me := auth.WorkspaceUserID()
	for i := range room.Members {
		if room.Members[i].WorkspaceUserID == me {
			return room, &room.Members[i], nil
		}
	}
	return nil, nil, apperror.Forbidden("not a member of this room")
}

func (s *InternalChatService) view(ctx context.Context, auth *AuthContext, room *models.ChatRoom) (*RoomView, error) {
	full, err := s.db.GetRoom(ctx, auth.WorkspaceID, room.ID)
	if err != nil {
		return nil, apperror.FromDB(err, "room")
	}
	return &RoomView{ChatRoom: *full, Name: roomName(full, auth.WorkspaceUserID())}, nil
}

func (s *InternalChatService) checkWorkspaceUsers(ctx context.Context, auth *AuthContext, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.db.CountWorkspaceUsers(ctx, auth.WorkspaceID, ids)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		s.log.Debug("unknown workspace users", zap.Uints("ids", ids))
		return apperror.Validation(map[string][]string{"memberIds": {"contains unknown workspace users"}})
	}
	return nil
}

func requireTeamAdmin(room *models.ChatRoom, member *models.ChatRoomMember) error {
	if room.Kind != models.RoomTeam {
		return apperror.BadRequest("only team rooms can be managed")
	}
	if member.Role != models.MemberOwner && member.Role != models.MemberAdmin {
		return apperror.Forbidden("room admin role required")
	}
	return nil
}

// roomName is the title of team rooms and the other participant's name
// for direct rooms.
func roomName(room *models.ChatRoom, me uint) string {
	switch room.Kind {
	case models.RoomSelf:
		return "Saved messages"
	case models.RoomDirect:
		for _, m := range room.Members {
			if m.WorkspaceUserID != me && m.WorkspaceUser != nil {
				return m.WorkspaceUser.Name()
			}
		}
	}
	return room.Title
}

// hide blanks the body of deleted messages, including a deleted message
// quoted through ReplyTo.
func hide(m models.ChatMessage) models.ChatMessage {
	if !m.IsVisible {
		m.Body = ""
	}
	if m.ReplyTo != nil {
		parent := hide(*m.ReplyTo)
		m.ReplyTo = &parent
	}
	return m
}

func messageBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperror.Validation(map[string][]string{"body": {"is required"}})
	}
	if len([]rune(body)) > maxMessageLength {
		return "", apperror.Validation(map[string][]string{"body": {"must be at most 4000 characters"}})
	}
	return body, nil
}

func withoutID(ids []uint, id uint) []uint {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
