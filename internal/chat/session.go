package chat

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"prompt-together/internal/protocol"
	"prompt-together/internal/room"
)

var validate = validator.New()

func (c *Client) dispatch(frame protocol.Frame) {
	switch frame.Event {
	case protocol.EventCreateRoom:
		c.handleCreateRoom(frame)
	case protocol.EventJoinRoom:
		c.handleJoinRoom(frame)
	case protocol.EventAddMessage:
		c.handleAddMessage(frame)
	case protocol.EventStartedTyping:
		c.handleTyping(frame, true)
	case protocol.EventStoppedTyping:
		c.handleTyping(frame, false)
	default:
		log.Printf("[WS] %s: unknown event %q", c.connID, frame.Event)
		if frame.Ack != 0 {
			c.ack(frame.Ack, protocol.JoinRoomAck{Success: false, Message: "unknown event"})
		}
	}
}

func (c *Client) handleCreateRoom(frame protocol.Frame) {
	r := c.registry.CreateRoom()
	c.ack(frame.Ack, protocol.CreateRoomAck{Success: true, CollabID: r.ID(), Name: r.Name()})
}

func (c *Client) handleJoinRoom(frame protocol.Frame) {
	var req protocol.JoinRoomRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		c.ack(frame.Ack, protocol.JoinRoomAck{Success: false, Message: "invalid payload"})
		return
	}

	req.Username = sanitizeUsername(req.Username)
	if err := validate.Struct(req); err != nil {
		c.ack(frame.Ack, protocol.JoinRoomAck{Success: false, Message: "username must be 3-60 characters"})
		return
	}

	r, err := c.registry.Get(req.RoomID)
	if err != nil {
		c.ack(frame.Ack, protocol.JoinRoomAck{Success: false, Message: "room not found"})
		return
	}

	// Rejoining the same room under the same name would collide with our own
	// membership, so that case leaves first. Every other join attempts first
	// and only ends the previous membership once it succeeds, so a rejected
	// join leaves the existing session untouched.
	if c.room != nil && c.room.ID() == r.ID() && c.username == req.Username {
		c.leaveCurrentRoom()
	}

	snapshot, err := r.Join(c.connID, req.Username, c)
	if err != nil {
		msg := "room not found"
		if errors.Is(err, room.ErrNameTaken) {
			msg = "name taken"
		}
		c.ack(frame.Ack, protocol.JoinRoomAck{Success: false, Message: msg})
		return
	}

	c.leaveCurrentRoom()
	c.room = r
	c.username = req.Username

	c.ack(frame.Ack, protocol.JoinRoomAck{
		Success:     true,
		Name:        snapshot.RoomName,
		AllMessages: snapshot.Messages,
		Members:     snapshot.Members,
	})
}

func (c *Client) handleAddMessage(frame protocol.Frame) {
	var req protocol.AddMessageRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		c.ack(frame.Ack, protocol.AddMessageAck{Success: false})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.ack(frame.Ack, protocol.AddMessageAck{Success: false})
		return
	}

	if c.room == nil || c.room.ID() != req.CollabID {
		c.ack(frame.Ack, protocol.AddMessageAck{Success: false})
		return
	}

	// The sender identity is the session's binding, not the payload.
	msg, err := c.room.Append(c.username, req.Message, req.ByUser, req.MsgID)
	if err != nil {
		log.Printf("[WS] %s: add message rejected: %v", c.connID, err)
		c.ack(frame.Ack, protocol.AddMessageAck{Success: false})
		return
	}

	c.ack(frame.Ack, protocol.AddMessageAck{Success: true, Seq: msg.Seq, Timestamp: msg.Timestamp})
}

func (c *Client) handleTyping(frame protocol.Frame, typing bool) {
	var req protocol.TypingRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return
	}
	if c.room == nil || c.room.ID() != req.CollabID {
		return
	}
	c.room.SetTyping(c.username, typing)
}

func (c *Client) leaveCurrentRoom() {
	if c.room == nil {
		return
	}
	c.room.Leave(c.username)
	c.room = nil
	c.username = ""
}

// sanitizeUsername trims surrounding whitespace and strips control
// characters before length validation.
func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}
