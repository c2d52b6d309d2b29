// Package client is the session adapter for the collaborative room protocol.
// It keeps a local mirror of one room's messages, members, and typing set for
// a single connection, reconciling server acks and pushes into that mirror.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prompt-together/internal/protocol"
)

var validate = validator.New()

var (
	// ErrRoomNotFound means the room id is unknown; the caller should fall
	// back to creating a fresh room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNameTaken means the display name is held by a current member. The
	// attempt is terminal; retrying the same name only works after the
	// holder leaves.
	ErrNameTaken = errors.New("name already taken")

	// ErrSendFailed means the server did not accept the message. The local
	// log is untouched and the send may be retried.
	ErrSendFailed = errors.New("failed to send message")

	// ErrDisconnected means the transport is gone; the session identity has
	// been cleared and a fresh Dial+Join is required.
	ErrDisconnected = errors.New("disconnected")
)

// NotificationKind distinguishes transient membership notifications.
type NotificationKind int

const (
	// UserJoined reports a new member.
	UserJoined NotificationKind = iota
	// UserLeft reports a departed member.
	UserLeft
)

// Notification is a transient membership event for optional UI display.
type Notification struct {
	Kind     NotificationKind
	Username string
}

// Client mirrors one connection's view of a room.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	nextAck   uint64
	pending   map[uint64]chan json.RawMessage

	stateMu  sync.RWMutex
	roomID   string
	roomName string
	username string
	messages []protocol.Message
	members  []string
	typing   []string

	notifications chan Notification
	done          chan struct{}
	closeOnce     sync.Once
}

// Dial connects to the server's websocket endpoint (ws://host/ws).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:          conn,
		pending:       make(map[uint64]chan json.RawMessage),
		notifications: make(chan Notification, 32),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// CreateRoom asks the server for a fresh room and returns its id and display
// name. Creating does not join.
func (c *Client) CreateRoom(ctx context.Context) (collabID, name string, err error) {
	raw, err := c.request(ctx, protocol.EventCreateRoom, nil)
	if err != nil {
		return "", "", err
	}
	var ack protocol.CreateRoomAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return "", "", err
	}
	if !ack.Success {
		return "", "", errors.New("create room rejected")
	}
	return ack.CollabID, ack.Name, nil
}

// Join enters the room under the given display name. On success the local
// messages and members mirrors are replaced wholesale with the server's
// snapshot.
func (c *Client) Join(ctx context.Context, roomID, username string) error {
	req := protocol.JoinRoomRequest{RoomID: roomID, Username: username}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("username must be %d-%d characters", protocol.MinUsernameLen, protocol.MaxUsernameLen)
	}

	raw, err := c.request(ctx, protocol.EventJoinRoom, req)
	if err != nil {
		return err
	}
	var ack protocol.JoinRoomAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return err
	}
	if !ack.Success {
		switch ack.Message {
		case "name taken":
			return ErrNameTaken
		case "room not found":
			return ErrRoomNotFound
		default:
			return fmt.Errorf("join rejected: %s", ack.Message)
		}
	}

	c.stateMu.Lock()
	c.roomID = roomID
	c.roomName = ack.Name
	c.username = username
	c.messages = ack.AllMessages
	c.members = ack.Members
	c.typing = nil
	c.stateMu.Unlock()
	return nil
}

// Send appends a human-authored message to the room. The local log is only
// updated from the success ack; on ErrSendFailed nothing is appended and the
// caller may retry without losing the text.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.send(ctx, text, true, uuid.NewString())
}

// SendAI relays an AI completion into the room as an AI-authored message.
func (c *Client) SendAI(ctx context.Context, text string) error {
	return c.send(ctx, text, false, uuid.NewString())
}

func (c *Client) send(ctx context.Context, text string, byUser bool, msgID string) error {
	c.stateMu.RLock()
	roomID, username := c.roomID, c.username
	c.stateMu.RUnlock()
	if roomID == "" {
		return ErrDisconnected
	}

	req := protocol.AddMessageRequest{
		Message:  text,
		ByUser:   byUser,
		CollabID: roomID,
		Username: username,
		MsgID:    msgID,
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("message must be 1-%d characters", protocol.MaxMessageLen)
	}

	raw, err := c.request(ctx, protocol.EventAddMessage, req)
	if err != nil {
		return err
	}
	var ack protocol.AddMessageAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return ErrSendFailed
	}

	author := username
	if !byUser {
		author = protocol.AuthorAI
	}
	c.stateMu.Lock()
	// A retried request acks with the original sequence number; only the
	// first ack appends.
	dup := false
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Seq == ack.Seq {
			dup = true
			break
		}
	}
	if !dup {
		c.messages = append(c.messages, protocol.Message{
			Seq:       ack.Seq,
			Text:      text,
			ByUser:    byUser,
			Username:  author,
			Timestamp: ack.Timestamp,
		})
	}
	c.stateMu.Unlock()
	return nil
}

// StartTyping signals active composition. No ack is expected.
func (c *Client) StartTyping() error { return c.typingEvent(protocol.EventStartedTyping) }

// StopTyping signals composition stopped. No ack is expected.
func (c *Client) StopTyping() error { return c.typingEvent(protocol.EventStoppedTyping) }

func (c *Client) typingEvent(event string) error {
	c.stateMu.RLock()
	req := protocol.TypingRequest{Username: c.username, CollabID: c.roomID}
	c.stateMu.RUnlock()
	if req.CollabID == "" {
		return ErrDisconnected
	}
	return c.writeFrame(protocol.NewFrame(event, 0, req))
}

// RoomName returns the joined room's display name, if any.
func (c *Client) RoomName() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.roomName
}

// Username returns the session's display name, empty when not joined.
func (c *Client) Username() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.username
}

// Messages returns a copy of the local message log.
func (c *Client) Messages() []protocol.Message {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return append([]protocol.Message(nil), c.messages...)
}

// Members returns a copy of the local member list.
func (c *Client) Members() []string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return append([]string(nil), c.members...)
}

// Typing returns a copy of the local typing set.
func (c *Client) Typing() []string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return append([]string(nil), c.typing...)
}

// Notifications delivers transient join/leave notifications. Slow consumers
// lose notifications, never state.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// Done closes when the transport disconnects.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) request(ctx context.Context, event string, data any) (json.RawMessage, error) {
	c.pendingMu.Lock()
	c.nextAck++
	id := c.nextAck
	reply := make(chan json.RawMessage, 1)
	c.pending[id] = reply
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(protocol.NewFrame(event, id, data)); err != nil {
		return nil, err
	}

	select {
	case raw := <-reply:
		return raw, nil
	case <-c.done:
		return nil, ErrDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) writeFrame(f protocol.Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Client) readLoop() {
	defer c.handleDisconnect()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// The server coalesces queued frames into one websocket message,
		// newline separated.
		for _, part := range bytes.Split(raw, []byte{'\n'}) {
			if len(part) == 0 {
				continue
			}
			var frame protocol.Frame
			if err := json.Unmarshal(part, &frame); err != nil {
				continue
			}
			c.handleFrame(frame)
		}
	}
}

func (c *Client) handleFrame(frame protocol.Frame) {
	if frame.Event == protocol.EventAck {
		c.pendingMu.Lock()
		reply, ok := c.pending[frame.Ack]
		c.pendingMu.Unlock()
		if ok {
			reply <- frame.Data
		}
		return
	}

	switch frame.Event {
	case protocol.EventNewMessage:
		var msg protocol.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return
		}
		c.stateMu.Lock()
		c.messages = append(c.messages, msg)
		c.stateMu.Unlock()

	case protocol.EventUserJoined:
		var push protocol.UserJoinedPush
		if err := json.Unmarshal(frame.Data, &push); err != nil {
			return
		}
		c.stateMu.Lock()
		c.members = push.Members
		c.stateMu.Unlock()
		c.notify(Notification{Kind: UserJoined, Username: push.Username})

	case protocol.EventUserLeft:
		var username string
		if err := json.Unmarshal(frame.Data, &username); err != nil {
			return
		}
		c.stateMu.Lock()
		members := c.members[:0:0]
		for _, m := range c.members {
			if m != username {
				members = append(members, m)
			}
		}
		c.members = members
		c.stateMu.Unlock()
		c.notify(Notification{Kind: UserLeft, Username: username})

	case protocol.EventTyping:
		var push protocol.TypingPush
		if err := json.Unmarshal(frame.Data, &push); err != nil {
			return
		}
		c.stateMu.Lock()
		c.typing = push.Users
		c.stateMu.Unlock()
	}
}

func (c *Client) notify(n Notification) {
	select {
	case c.notifications <- n:
	default:
	}
}

// handleDisconnect clears the session identity so the owner is forced
// through a fresh join flow.
func (c *Client) handleDisconnect() {
	c.stateMu.Lock()
	c.roomID = ""
	c.roomName = ""
	c.username = ""
	c.stateMu.Unlock()
	close(c.done)
}
