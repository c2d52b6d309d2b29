// Package protocol defines the JSON wire contract shared by the server and
// the session client: the frame envelope, event names, and event payloads.
package protocol

import (
	"encoding/json"
	"time"
)

// Event names for client-initiated requests.
const (
	EventCreateRoom    = "create room"
	EventJoinRoom      = "join room"
	EventAddMessage    = "add message"
	EventStartedTyping = "started typing"
	EventStoppedTyping = "stopped typing"
)

// Event names for server-originated frames.
const (
	EventAck        = "ack"
	EventNewMessage = "new message"
	EventUserJoined = "user joined"
	EventUserLeft   = "user left"
	EventTyping     = "typing"
)

// Frame is the envelope for every websocket message in both directions.
// A client request that expects an acknowledgment carries a non-zero Ack id;
// the server answers it with exactly one EventAck frame echoing that id.
// Push frames carry no Ack id.
type Frame struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame. Marshal errors are impossible for the
// payload types in this package, so they are swallowed here.
func NewFrame(event string, ack uint64, data any) Frame {
	raw, _ := json.Marshal(data)
	return Frame{Event: event, Ack: ack, Data: raw}
}

// AuthorAI is the fixed author sentinel for AI-authored messages. AI messages
// never reference a joined member.
const AuthorAI = "AI"

// Limits enforced defensively on arrival and again client-side before sending.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 60
	MaxMessageLen  = 700
)

// Message is an immutable unit of room content. Seq is assigned by the room
// and is strictly increasing, gapless, starting at 1.
type Message struct {
	Seq       int64     `json:"seq"`
	Text      string    `json:"message"`
	ByUser    bool      `json:"byUser"`
	Username  string    `json:"username,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JoinRoomRequest asks to join an existing room under a display name.
type JoinRoomRequest struct {
	RoomID   string `json:"roomId" validate:"required"`
	Username string `json:"username" validate:"required,min=3,max=60"`
}

// AddMessageRequest appends a message to the sender's current room. MsgID is
// an optional client-generated idempotency token: retrying with the same id
// never appends twice.
type AddMessageRequest struct {
	Message  string `json:"message" validate:"required,max=700"`
	ByUser   bool   `json:"byUser"`
	CollabID string `json:"collabId" validate:"required"`
	Username string `json:"username"`
	MsgID    string `json:"msgId,omitempty"`
}

// TypingRequest marks the sender as composing or idle. No ack is sent.
type TypingRequest struct {
	Username string `json:"username"`
	CollabID string `json:"collabId"`
}

// CreateRoomAck acknowledges a "create room" request.
type CreateRoomAck struct {
	Success  bool   `json:"success"`
	CollabID string `json:"collabId"`
	Name     string `json:"name"`
}

// JoinRoomAck acknowledges a "join room" request. On success it carries the
// room's display name, the full message history in sequence order, and the
// member list including the new member. On failure Message explains why.
type JoinRoomAck struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Name        string    `json:"name,omitempty"`
	AllMessages []Message `json:"allMessages,omitempty"`
	Members     []string  `json:"members,omitempty"`
}

// AddMessageAck acknowledges an "add message" request. The sender applies the
// message to its own local log from this ack alone; it never receives its own
// message as a push.
type AddMessageAck struct {
	Success   bool      `json:"success"`
	Seq       int64     `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserJoinedPush notifies existing members of a new member.
type UserJoinedPush struct {
	Username string   `json:"username"`
	Members  []string `json:"members"`
}

// TypingPush carries the full current typing set, replacing any previous one.
type TypingPush struct {
	Users []string `json:"users"`
}
