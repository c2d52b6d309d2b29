// Package room implements the collaborative room core: the Room data
// structure and its single-writer event loop, membership, ordered message
// broadcast, typing presence, and the process-wide registry that owns rooms.
package room

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"prompt-together/internal/protocol"
)

// dedupeWindow bounds the per-room map of recently seen client message ids.
const dedupeWindow = 256

// Sink receives push frames for one member connection. Push must not block;
// it reports false when the frame was dropped.
type Sink interface {
	Push(event string, data any) bool
	ConnectionID() string
}

// Member is a named participant currently joined to a room. A member belongs
// to exactly one room per connection.
type Member struct {
	ConnID string
	Name   string
	sink   Sink
}

// JoinSnapshot is returned to a successfully joined member: the room's
// display name, the full message history in sequence order, and the member
// list including the new member.
type JoinSnapshot struct {
	RoomName string
	Messages []protocol.Message
	Members  []string
}

// Room is one collaborative namespace. All mutable state is owned by the
// room's event loop goroutine; every mutation goes through the commands
// channel, which is what serializes concurrent requests targeting the same
// room and keeps sequence numbers gapless. Rooms never block one another.
type Room struct {
	id   string
	name string

	commands  chan command
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the event loop. Never touched from outside run().
	members    map[string]*Member
	order      []string
	messages   []protocol.Message
	typing     map[string]struct{}
	nextSeq    int64
	seen       map[string]int64
	seenOrder  []string
	emptySince time.Time
}

type command interface{}

type joinCmd struct {
	connID string
	name   string
	sink   Sink
	reply  chan joinReply
}

type joinReply struct {
	snapshot JoinSnapshot
	err      error
}

type leaveCmd struct {
	name  string
	reply chan struct{}
}

type appendCmd struct {
	sender string
	text   string
	byUser bool
	msgID  string
	reply  chan appendReply
}

type appendReply struct {
	msg protocol.Message
	err error
}

type typingCmd struct {
	name   string
	typing bool
	reply  chan struct{}
}

type snapshotCmd struct {
	reply chan snapshotReply
}

type snapshotReply struct {
	members  []string
	messages []protocol.Message
	typing   []string
}

type closeIfIdleCmd struct {
	ttl   time.Duration
	reply chan bool
}

func newRoom(id, name string) *Room {
	r := &Room{
		id:         id,
		name:       name,
		commands:   make(chan command),
		done:       make(chan struct{}),
		members:    make(map[string]*Member),
		typing:     make(map[string]struct{}),
		seen:       make(map[string]int64),
		emptySince: time.Now(),
	}
	go r.run()
	return r
}

// ID returns the room's opaque id token.
func (r *Room) ID() string { return r.id }

// Name returns the room's human-friendly display label.
func (r *Room) Name() string { return r.name }

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			log.Printf("[ROOM] %s (%s) event loop stopped", r.name, r.id)
			return
		case cmd := <-r.commands:
			switch c := cmd.(type) {
			case joinCmd:
				c.reply <- r.handleJoin(c)
			case leaveCmd:
				r.handleLeave(c.name)
				c.reply <- struct{}{}
			case appendCmd:
				c.reply <- r.handleAppend(c)
			case typingCmd:
				r.handleTyping(c.name, c.typing)
				c.reply <- struct{}{}
			case snapshotCmd:
				c.reply <- r.handleSnapshot()
			case closeIfIdleCmd:
				// The idle check and the close are a single step of the event
				// loop, so a join can never be acked into a dying room: it
				// either lands before this command or fails ErrRoomClosed.
				if len(r.members) == 0 && !r.emptySince.IsZero() && time.Since(r.emptySince) >= c.ttl {
					c.reply <- true
					r.close()
					log.Printf("[ROOM] %s (%s) event loop stopped", r.name, r.id)
					return
				}
				c.reply <- false
			}
		}
	}
}

func (r *Room) handleJoin(c joinCmd) joinReply {
	if _, taken := r.members[c.name]; taken {
		log.Printf("[ROOM] %s: join rejected, name %q taken", r.id, c.name)
		return joinReply{err: ErrNameTaken}
	}

	r.members[c.name] = &Member{ConnID: c.connID, Name: c.name, sink: c.sink}
	r.order = append(r.order, c.name)
	r.emptySince = time.Time{}

	members := r.memberList()
	log.Printf("[ROOM] %s: %q joined (%d members)", r.id, c.name, len(members))

	r.pushToOthers(c.name, protocol.EventUserJoined, protocol.UserJoinedPush{
		Username: c.name,
		Members:  members,
	})

	history := make([]protocol.Message, len(r.messages))
	copy(history, r.messages)

	return joinReply{snapshot: JoinSnapshot{
		RoomName: r.name,
		Messages: history,
		Members:  members,
	}}
}

func (r *Room) handleLeave(name string) {
	if _, ok := r.members[name]; !ok {
		return
	}
	delete(r.members, name)
	r.order = lo.Without(r.order, name)
	if len(r.members) == 0 {
		r.emptySince = time.Now()
	}
	log.Printf("[ROOM] %s: %q left (%d members remain)", r.id, name, len(r.members))

	r.pushToOthers(name, protocol.EventUserLeft, name)

	if _, wasTyping := r.typing[name]; wasTyping {
		delete(r.typing, name)
		r.pushTypingSet()
	}
}

func (r *Room) handleAppend(c appendCmd) appendReply {
	if _, ok := r.members[c.sender]; !ok {
		return appendReply{err: ErrNotMember}
	}

	if c.msgID != "" {
		key := c.sender + "\x00" + c.msgID
		if seq, dup := r.seen[key]; dup {
			log.Printf("[ROOM] %s: duplicate msgId from %q, re-acking seq %d", r.id, c.sender, seq)
			// The log is gapless and append-only, so seq N lives at index N-1.
			return appendReply{msg: r.messages[seq-1]}
		}
	}

	author := c.sender
	if !c.byUser {
		author = protocol.AuthorAI
	}

	r.nextSeq++
	msg := protocol.Message{
		Seq:       r.nextSeq,
		Text:      c.text,
		ByUser:    c.byUser,
		Username:  author,
		Timestamp: time.Now(),
	}
	r.messages = append(r.messages, msg)

	if c.msgID != "" {
		r.remember(c.sender+"\x00"+c.msgID, msg.Seq)
	}

	// The sender applies the message from its ack; everyone else gets a push.
	r.pushToOthers(c.sender, protocol.EventNewMessage, msg)

	return appendReply{msg: msg}
}

func (r *Room) remember(key string, seq int64) {
	r.seen[key] = seq
	r.seenOrder = append(r.seenOrder, key)
	if len(r.seenOrder) > dedupeWindow {
		delete(r.seen, r.seenOrder[0])
		r.seenOrder = r.seenOrder[1:]
	}
}

func (r *Room) handleTyping(name string, typing bool) {
	if _, ok := r.members[name]; !ok {
		return
	}
	_, present := r.typing[name]
	if typing == present {
		// Idempotent repeat, no broadcast.
		return
	}
	if typing {
		r.typing[name] = struct{}{}
	} else {
		delete(r.typing, name)
	}
	r.pushTypingSet()
}

func (r *Room) handleSnapshot() snapshotReply {
	reply := snapshotReply{
		members:  r.memberList(),
		messages: make([]protocol.Message, len(r.messages)),
		typing:   r.typingList(),
	}
	copy(reply.messages, r.messages)
	return reply
}

func (r *Room) memberList() []string {
	return append([]string(nil), r.order...)
}

func (r *Room) typingList() []string {
	users := lo.Keys(r.typing)
	sort.Strings(users)
	return users
}

func (r *Room) pushTypingSet() {
	push := protocol.TypingPush{Users: r.typingList()}
	for _, m := range r.members {
		if !m.sink.Push(protocol.EventTyping, push) {
			log.Printf("[ROOM] %s: dropped typing push for %q (slow consumer)", r.id, m.Name)
		}
	}
}

func (r *Room) pushToOthers(except string, event string, data any) {
	for name, m := range r.members {
		if name == except {
			continue
		}
		if !m.sink.Push(event, data) {
			log.Printf("[ROOM] %s: dropped %q push for %q (slow consumer)", r.id, event, m.Name)
		}
	}
}

func (r *Room) do(c command) error {
	select {
	case r.commands <- c:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Join adds a member under the given display name. It fails with ErrNameTaken
// when the name is held by a currently joined member, leaving membership
// untouched, and pushes "user joined" to every other member on success.
func (r *Room) Join(connID, name string, sink Sink) (JoinSnapshot, error) {
	c := joinCmd{connID: connID, name: name, sink: sink, reply: make(chan joinReply, 1)}
	if err := r.do(c); err != nil {
		return JoinSnapshot{}, err
	}
	reply := <-c.reply
	return reply.snapshot, reply.err
}

// Leave removes the named member, frees the display name for reuse, clears
// its typing entry, and pushes "user left" to the remaining members. Leaving
// a room one is not in is a no-op.
func (r *Room) Leave(name string) {
	c := leaveCmd{name: name, reply: make(chan struct{}, 1)}
	if err := r.do(c); err != nil {
		return
	}
	<-c.reply
}

// Append assigns the next sequence number and appends a message on behalf of
// sender, who must be a current member. AI-relayed messages (byUser=false)
// are stored under the fixed AI author sentinel. The new message is pushed to
// every member except the sender, which learns the outcome from the returned
// stored message alone. A non-empty msgID deduplicates retries, returning the
// originally stored message.
func (r *Room) Append(sender, text string, byUser bool, msgID string) (protocol.Message, error) {
	c := appendCmd{sender: sender, text: text, byUser: byUser, msgID: msgID, reply: make(chan appendReply, 1)}
	if err := r.do(c); err != nil {
		return protocol.Message{}, err
	}
	reply := <-c.reply
	return reply.msg, reply.err
}

// SetTyping adds or removes the member from the typing set. Any actual change
// broadcasts the full typing set to all members; repeats are no-ops.
func (r *Room) SetTyping(name string, typing bool) {
	c := typingCmd{name: name, typing: typing, reply: make(chan struct{}, 1)}
	if err := r.do(c); err != nil {
		return
	}
	<-c.reply
}

// Members returns the current member display names in join order.
func (r *Room) Members() []string {
	s, err := r.snapshot()
	if err != nil {
		return nil
	}
	return s.members
}

// Messages returns a copy of the message log in sequence order.
func (r *Room) Messages() []protocol.Message {
	s, err := r.snapshot()
	if err != nil {
		return nil
	}
	return s.messages
}

// Typing returns the current typing set, sorted.
func (r *Room) Typing() []string {
	s, err := r.snapshot()
	if err != nil {
		return nil
	}
	return s.typing
}

func (r *Room) snapshot() (snapshotReply, error) {
	c := snapshotCmd{reply: make(chan snapshotReply, 1)}
	if err := r.do(c); err != nil {
		return snapshotReply{}, err
	}
	return <-c.reply, nil
}

func (r *Room) close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// closeIfIdle asks the event loop to shut the room down if it has been empty
// for at least ttl. It reports whether the room is now closed; a room whose
// loop has already stopped counts as closed.
func (r *Room) closeIfIdle(ttl time.Duration) bool {
	c := closeIfIdleCmd{ttl: ttl, reply: make(chan bool, 1)}
	if err := r.do(c); err != nil {
		return true
	}
	return <-c.reply
}
