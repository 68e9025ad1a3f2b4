package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/pkg/logger"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(logger.NewNop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	return Message{}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := startHub(t)
	in := NewClient(h, nil, "wu:1", nil)
	out := NewClient(h, nil, "wu:2", nil)
	h.Register(in)
	h.Register(out)
	h.JoinRoom(in, "internal-room:7")

	h.Broadcast("internal-room:7", "internal-chat:message", map[string]any{"body": "hi"})

	msg := receive(t, in)
	assert.Equal(t, "internal-chat:message", msg.Event)
	assert.JSONEq(t, `{"body":"hi"}`, string(msg.Data))

	select {
	case <-out.Send:
		t.Fatal("client outside the room received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterLeavesRooms(t *testing.T) {
	h := startHub(t)
	c := NewClient(h, nil, "guest:1", nil)
	h.Register(c)
	h.JoinRoom(c, "support-ticket:1")
	h.JoinRoom(c, "support-ticket:2")
	assert.Equal(t, 1, h.RoomSize("support-ticket:1"))
	assert.ElementsMatch(t, []string{"support-ticket:1", "support-ticket:2"}, c.GetRooms())

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, h.RoomSize("support-ticket:1"))
	assert.Zero(t, h.RoomSize("support-ticket:2"))

	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h := startHub(t)
	c := NewClient(h, nil, "wu:3", nil)
	h.Register(c)
	h.JoinRoom(c, "r")
	h.LeaveRoom(c, "r")
	assert.False(t, c.IsInRoom("r"))

	h.Broadcast("r", "x", nil)
	select {
	case <-c.Send:
		t.Fatal("unexpected delivery after leaving")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvictRemovesEverySocketOfIdentity(t *testing.T) {
	h := startHub(t)
	phone := NewClient(h, nil, "workspace-user:1", nil)
	laptop := NewClient(h, nil, "workspace-user:1", nil)
	other := NewClient(h, nil, "workspace-user:2", nil)
	for _, c := range []*Client{phone, laptop, other} {
		h.Register(c)
		h.JoinRoom(c, "internal-room:4")
	}
	h.JoinRoom(phone, "workspace-user:1")

	h.Evict("internal-room:4", "workspace-user:1")
	h.Broadcast("internal-room:4", "internal-chat:message", map[string]any{"body": "after"})

	assert.Equal(t, "internal-chat:message", receive(t, other).Event)
	assert.Equal(t, 1, h.RoomSize("internal-room:4"))
	assert.False(t, phone.IsInRoom("internal-room:4"))
	assert.False(t, laptop.IsInRoom("internal-room:4"))
	assert.True(t, phone.IsInRoom("workspace-user:1"))
	assert.Empty(t, phone.Send)
	assert.Empty(t, laptop.Send)
}

func TestSendToRoomExceptSkipsSender(t *testing.T) {
	h := startHub(t)
	a := NewClient(h, nil, "wu:1", nil)
	b := NewClient(h, nil, "wu:2", nil)
	h.Register(a)
	h.Register(b)
	h.JoinRoom(a, "r")
	h.JoinRoom(b, "r")

	payload, err := Encode("support-chat:typing", map[string]any{"ticketId": 1})
	require.NoError(t, err)
	h.SendToRoomExcept("r", payload, a.ID)

	assert.Equal(t, "support-chat:typing", receive(t, b).Event)
	assert.Empty(t, a.Send)
}

func TestClientSendMessageQueueFull(t *testing.T) {
	c := NewClient(nil, nil, "wu:1", nil)
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.SendMessage("x", i))
	}
	assert.ErrorIs(t, c.SendMessage("x", "overflow"), ErrClientQueueFull)
}
