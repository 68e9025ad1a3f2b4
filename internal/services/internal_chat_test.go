package services

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/models"
	"golang.org/x/sync/errgroup"
)

func TestIsRead(t *testing.T) {
	me := models.ChatRoomMember{ID: 1, WorkspaceUserID: 10}
	other := models.ChatRoomMember{ID: 2, WorkspaceUserID: 20}
	third := models.ChatRoomMember{ID: 3, WorkspaceUserID: 30}
	team := &models.ChatRoom{Kind: models.RoomTeam, Members: []models.ChatRoomMember{me, other, third}}
	self := &models.ChatRoom{Kind: models.RoomSelf, Members: []models.ChatRoomMember{me}}

	mine := &models.ChatMessage{SenderID: 10}
	theirs := &models.ChatMessage{SenderID: 20}

	tests := []struct {
		name    string
		room    *models.ChatRoom
		msg     *models.ChatMessage
		readers map[uint]bool
		want    bool
	}{
		{"self room is always read", self, mine, nil, true},
		{"incoming unread", team, theirs, map[uint]bool{3: true}, false},
		{"incoming read by me", team, theirs, map[uint]bool{1: true}, true},
		{"own message read by some", team, mine, map[uint]bool{2: true}, false},
		{"own message read by all", team, mine, map[uint]bool{2: true, 3: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRead(tt.room, &me, tt.msg, tt.readers))
		})
	}
}

func TestDirectRoomIsCreatedOnce(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()

	room, created, err := svc.CreateDirectRoom(ctx, e.as(e.fx.Owner), e.fx.Agent.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoomDirect, room.Kind)
	assert.Equal(t, "Agent", room.Name)
	assert.Len(t, room.Members, 2)
	assert.Equal(t, []string{EventInternalRoom}, e.rec.events(WorkspaceUserKey(e.fx.Agent.ID)))

	again, created, err := svc.CreateDirectRoom(ctx, e.as(e.fx.Agent), e.fx.Owner.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, again.ID)

	contacts, err := svc.ListContacts(ctx, e.as(e.fx.Owner))
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	for _, c := range contacts {
		if c.ID == e.fx.Agent.ID {
			require.NotNil(t, c.DirectRoomID)
			assert.Equal(t, room.ID, *c.DirectRoomID)
		} else {
			assert.Nil(t, c.DirectRoomID)
		}
	}
}

func TestConcurrentDirectRoomCreatesOneRoom(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()

	const callers = 8
	ids := make([]uint, callers)
	var created atomic.Int32
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			me, other := e.fx.Owner, e.fx.Agent
			if i%2 == 1 {
				me, other = other, me
			}
			room, isNew, err := svc.CreateDirectRoom(ctx, e.as(me), other.ID)
			if err != nil {
				return err
			}
			ids[i] = room.ID
			if isNew {
				created.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, created.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var rooms int64
	require.NoError(t, e.db.DB().Model(&models.ChatRoom{}).
		Where("workspace_id = ? AND kind = ?", e.fx.Workspace.ID, models.RoomDirect).
		Count(&rooms).Error)
	assert.EqualValues(t, 1, rooms)

	members, err := e.db.GetRoomMembers(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, members, 2)
	got := []uint{members[0].WorkspaceUserID, members[1].WorkspaceUserID}
	assert.ElementsMatch(t, []uint{e.fx.Owner.ID, e.fx.Agent.ID}, got)
}

func TestDirectRoomWithUnknownUser(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)

	_, _, err := svc.CreateDirectRoom(context.Background(), e.as(e.fx.Owner), 9999)
	requireStatus(t, err, http.StatusNotFound)

	_, _, err = svc.CreateDirectRoom(context.Background(), e.as(e.fx.Owner), 0)
	requireStatus(t, err, http.StatusUnprocessableEntity)
}

func TestSelfRoomMessagesAreRead(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	auth := e.as(e.fx.Owner)

	room, created, err := svc.CreateDirectRoom(ctx, auth, e.fx.Owner.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoomSelf, room.Kind)
	assert.Equal(t, "Saved messages", room.Name)

	same, created, err := svc.GetSelfRoom(ctx, auth)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, same.ID)

	_, err = svc.SendMessage(ctx, auth, SendMessageInput{RoomID: room.ID, Body: "buy milk"})
	require.NoError(t, err)

	page, err := svc.ListMessages(ctx, auth, room.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.True(t, page.Data[0].IsRead)
	assert.True(t, page.Data[0].IsMine)

	summary, err := svc.UnreadCount(ctx, auth, e.fx.Owner.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

func TestTeamRoomReadReceipts(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	owner, agent := e.as(e.fx.Owner), e.as(e.fx.Agent)

	room, err := svc.CreateTeamRoom(ctx, owner, CreateRoomInput{
		Title:     "  Ops  ",
		MemberIDs: []uint{e.fx.Agent.ID, e.fx.Agent.ID, e.fx.Owner.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ops", room.Name)
	require.Len(t, room.Members, 2)
	assert.Equal(t, models.MemberOwner, room.Members[0].Role)

	sent, err := svc.SendMessage(ctx, owner, SendMessageInput{RoomID: room.ID, Body: "standup in 5", TempID: "tmp-1"})
	require.NoError(t, err)
	assert.Equal(t, "tmp-1", sent.TempID)
	assert.Contains(t, e.rec.events(InternalRoomKey(room.ID)), EventInternalMessage)

	page, err := svc.ListMessages(ctx, owner, room.ID, 1, 20)
	require.NoError(t, err)
	assert.False(t, page.Data[0].IsRead)

	summary, err := svc.UnreadCount(ctx, agent, e.fx.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Total)
	assert.Equal(t, int64(1), summary.Rooms[room.ID])

	n, err := svc.MarkAsRead(ctx, agent, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = svc.MarkAsRead(ctx, agent, room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err = svc.ListMessages(ctx, owner, room.ID, 1, 20)
	require.NoError(t, err)
	assert.True(t, page.Data[0].IsRead)

	rooms, err := svc.ListRooms(ctx, agent)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Zero(t, rooms[0].UnreadCount)
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "standup in 5", rooms[0].LastMessage.Body)
}

func TestLeaveAndRejoinStartsFresh(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	owner, agent := e.as(e.fx.Owner), e.as(e.fx.Agent)

	room, err := svc.CreateTeamRoom(ctx, owner, CreateRoomInput{Title: "Ops", MemberIDs: []uint{e.fx.Agent.ID}})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, owner, SendMessageInput{RoomID: room.ID, Body: "hello"})
	require.NoError(t, err)
	_, err = svc.MarkAsRead(ctx, agent, room.ID)
	require.NoError(t, err)

	before, err := e.db.GetMembership(ctx, room.ID, e.fx.Agent.ID)
	require.NoError(t, err)

	require.NoError(t, svc.LeaveRoom(ctx, agent, room.ID))
	_, err = svc.ListMessages(ctx, agent, room.ID, 1, 20)
	requireStatus(t, err, http.StatusForbidden)

	_, err = svc.AddMembers(ctx, owner, room.ID, []uint{e.fx.Agent.ID})
	require.NoError(t, err)

	after, err := e.db.GetMembership(ctx, room.ID, e.fx.Agent.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)

	page, err := svc.ListMessages(ctx, agent, room.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.False(t, page.Data[0].IsRead)
}

func TestOwnerLeavingHandsOverRoom(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	owner := e.as(e.fx.Owner)

	room, err := svc.CreateTeamRoom(ctx, owner, CreateRoomInput{Title: "Ops", MemberIDs: []uint{e.fx.Agent.ID, e.fx.Customer.ID}})
	require.NoError(t, err)

	err = svc.RemoveMember(ctx, e.as(e.fx.Agent), room.ID, e.fx.Customer.ID)
	requireStatus(t, err, http.StatusForbidden)

	require.NoError(t, svc.LeaveRoom(ctx, owner, room.ID))
	next, err := e.db.GetMembership(ctx, room.ID, e.fx.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MemberOwner, next.Role)

	require.NoError(t, svc.RemoveMember(ctx, e.as(e.fx.Agent), room.ID, e.fx.Customer.ID))
	_, err = e.db.GetMembership(ctx, room.ID, e.fx.Customer.ID)
	assert.Error(t, err)
}

func TestDirectRoomCannotBeLeft(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()

	room, _, err := svc.CreateDirectRoom(ctx, e.as(e.fx.Owner), e.fx.Agent.ID)
	require.NoError(t, err)

	err = svc.LeaveRoom(ctx, e.as(e.fx.Owner), room.ID)
	requireStatus(t, err, http.StatusBadRequest)

	title := "renamed"
	_, err = svc.UpdateRoom(ctx, e.as(e.fx.Owner), room.ID, UpdateRoomInput{Title: &title})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestMessageEditAndDelete(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	owner, agent := e.as(e.fx.Owner), e.as(e.fx.Agent)

	room, _, err := svc.CreateDirectRoom(ctx, owner, e.fx.Agent.ID)
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, owner, SendMessageInput{RoomID: room.ID, Body: "helo"})
	require.NoError(t, err)

	_, err = svc.EditMessage(ctx, agent, msg.ID, "hijack")
	requireStatus(t, err, http.StatusForbidden)

	edited, err := svc.EditMessage(ctx, owner, msg.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Body)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)

	require.NoError(t, svc.DeleteMessage(ctx, owner, msg.ID))
	_, err = svc.EditMessage(ctx, owner, msg.ID, "again")
	requireStatus(t, err, http.StatusBadRequest)

	page, err := svc.ListMessages(ctx, agent, room.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.False(t, page.Data[0].IsVisible)
	assert.Empty(t, page.Data[0].Body)

	summary, err := svc.UnreadCount(ctx, agent, e.fx.Agent.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

func TestReplyToDeletedMessageHidesQuote(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	owner, agent := e.as(e.fx.Owner), e.as(e.fx.Agent)

	room, _, err := svc.CreateDirectRoom(ctx, owner, e.fx.Agent.ID)
	require.NoError(t, err)
	parent, err := svc.SendMessage(ctx, owner, SendMessageInput{RoomID: room.ID, Body: "secret text"})
	require.NoError(t, err)
	reply, err := svc.SendMessage(ctx, agent, SendMessageInput{RoomID: room.ID, Body: "noted", ReplyToID: &parent.ID})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteMessage(ctx, owner, parent.ID))

	page, err := svc.ListMessages(ctx, agent, room.ID, 1, 20)
	require.NoError(t, err)
	var found *MessageView
	for i := range page.Data {
		if page.Data[i].ID == reply.ID {
			found = &page.Data[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "noted", found.Body)
	require.NotNil(t, found.ReplyTo)
	assert.False(t, found.ReplyTo.IsVisible)
	assert.Empty(t, found.ReplyTo.Body)
}

func TestRemovedMembersAreEvictedFromRoom(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	owner := e.as(e.fx.Owner)

	room, err := svc.CreateTeamRoom(ctx, owner, CreateRoomInput{Title: "Ops", MemberIDs: []uint{e.fx.Agent.ID, e.fx.Customer.ID}})
	require.NoError(t, err)
	key := InternalRoomKey(room.ID)

	require.NoError(t, svc.RemoveMember(ctx, owner, room.ID, e.fx.Customer.ID))
	require.NoError(t, svc.LeaveRoom(ctx, e.as(e.fx.Agent), room.ID))

	assert.Equal(t, []eviction{
		{Room: key, Identity: WorkspaceUserKey(e.fx.Customer.ID)},
		{Room: key, Identity: WorkspaceUserKey(e.fx.Agent.ID)},
	}, e.rec.evictions())
	assert.Contains(t, e.rec.events(key), EventInternalMembers)
}

func TestMessageBodyLimits(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()
	auth := e.as(e.fx.Owner)
	room, _, err := svc.GetSelfRoom(ctx, auth)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, auth, SendMessageInput{RoomID: room.ID, Body: "   "})
	appErr := requireStatus(t, err, http.StatusUnprocessableEntity)
	assert.Equal(t, []string{"is required"}, appErr.Errors["body"])

	_, err = svc.SendMessage(ctx, auth, SendMessageInput{RoomID: room.ID, Body: strings.Repeat("ж", maxMessageLength+1)})
	requireStatus(t, err, http.StatusUnprocessableEntity)

	_, err = svc.SendMessage(ctx, auth, SendMessageInput{RoomID: room.ID, Body: strings.Repeat("ж", maxMessageLength)})
	assert.NoError(t, err)
}

func TestOutsiderCannotReadRoom(t *testing.T) {
	e := newEnv(t)
	svc := NewInternalChatService(e.deps)
	ctx := context.Background()

	room, _, err := svc.CreateDirectRoom(ctx, e.as(e.fx.Owner), e.fx.Agent.ID)
	require.NoError(t, err)

	customer := e.as(e.fx.Customer)
	_, err = svc.SendMessage(ctx, customer, SendMessageInput{RoomID: room.ID, Body: "hi"})
	requireStatus(t, err, http.StatusForbidden)
	requireStatus(t, svc.CanJoin(ctx, customer, room.ID), http.StatusForbidden)

	_, err = svc.UnreadCount(ctx, customer, e.fx.Agent.ID)
	requireStatus(t, err, http.StatusForbidden)

	summary, err := svc.UnreadCount(ctx, e.as(e.fx.Owner), e.fx.Agent.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}
