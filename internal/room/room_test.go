package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"prompt-together/internal/protocol"
)

type push struct {
	event string
	data  any
}

type fakeSink struct {
	mu     sync.Mutex
	connID string
	pushes []push
}

func newFakeSink(connID string) *fakeSink {
	return &fakeSink{connID: connID}
}

func (s *fakeSink) Push(event string, data any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, push{event: event, data: data})
	return true
}

func (s *fakeSink) ConnectionID() string { return s.connID }

func (s *fakeSink) byEvent(event string) []push {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []push
	for _, p := range s.pushes {
		if p.event == event {
			out = append(out, p)
		}
	}
	return out
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	r := newRoom("room-1", "amber-falcon-01")
	t.Cleanup(r.close)
	return r
}

func TestJoinReturnsSnapshotAndNotifiesOthers(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	alice := newFakeSink("c1")

	snap, err := r.Join("c1", "alice", alice)
	req.NoError(err)
	req.Equal("amber-falcon-01", snap.RoomName)
	req.Empty(snap.Messages)
	req.Equal([]string{"alice"}, snap.Members)

	bob := newFakeSink("c2")
	snap, err = r.Join("c2", "bob", bob)
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, snap.Members)

	// Only the existing member hears about the join.
	joined := alice.byEvent(protocol.EventUserJoined)
	req.Len(joined, 1)
	req.Equal(protocol.UserJoinedPush{Username: "bob", Members: []string{"alice", "bob"}}, joined[0].data)
	req.Empty(bob.byEvent(protocol.EventUserJoined))
}

func TestJoinConflictLeavesMembershipUntouched(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)

	_, err := r.Join("c1", "alice", newFakeSink("c1"))
	req.NoError(err)

	_, err = r.Join("c2", "alice", newFakeSink("c2"))
	req.ErrorIs(err, ErrNameTaken)
	req.Equal([]string{"alice"}, r.Members())

	snap, err := r.Join("c2", "bob", newFakeSink("c2"))
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, snap.Members)
}

func TestAppendAcksSenderAndPushesToOthers(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	alice := newFakeSink("c1")
	bob := newFakeSink("c2")
	_, err := r.Join("c1", "alice", alice)
	req.NoError(err)
	_, err = r.Join("c2", "bob", bob)
	req.NoError(err)

	sent, err := r.Append("bob", "hello", true, "")
	req.NoError(err)
	req.Equal(int64(1), sent.Seq)
	req.False(sent.Timestamp.IsZero())

	// bob applies his own message from the ack alone.
	req.Empty(bob.byEvent(protocol.EventNewMessage))

	pushes := alice.byEvent(protocol.EventNewMessage)
	req.Len(pushes, 1)
	msg := pushes[0].data.(protocol.Message)
	req.Equal("hello", msg.Text)
	req.True(msg.ByUser)
	req.Equal("bob", msg.Username)
	req.Equal(int64(1), msg.Seq)
}

func TestAppendRejectsNonMembers(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	_, err := r.Join("c1", "alice", newFakeSink("c1"))
	req.NoError(err)

	_, err = r.Append("mallory", "hi", true, "")
	req.ErrorIs(err, ErrNotMember)
	req.Empty(r.Messages())
}

func TestAIMessagesCarrySentinelAuthor(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	_, err := r.Join("c1", "alice", newFakeSink("c1"))
	req.NoError(err)

	_, err = r.Append("alice", "generated text", false, "")
	req.NoError(err)

	msgs := r.Messages()
	req.Len(msgs, 1)
	req.Equal(protocol.AuthorAI, msgs[0].Username)
	req.False(msgs[0].ByUser)
}

func TestSequenceNumbersGaplessUnderConcurrentSenders(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)

	const senders = 8
	const perSender = 50

	for i := 0; i < senders; i++ {
		_, err := r.Join(fmt.Sprintf("c%d", i), fmt.Sprintf("user-%d", i), newFakeSink(fmt.Sprintf("c%d", i)))
		req.NoError(err)
	}

	errs := make(chan error, senders*perSender)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := r.Append(name, "msg", true, "")
				errs <- err
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	msgs := r.Messages()
	req.Len(msgs, senders*perSender)
	for i, m := range msgs {
		req.Equal(int64(i+1), m.Seq)
	}
}

func TestTypingBroadcastAndIdempotence(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	alice := newFakeSink("c1")
	bob := newFakeSink("c2")
	_, err := r.Join("c1", "alice", alice)
	req.NoError(err)
	_, err = r.Join("c2", "bob", bob)
	req.NoError(err)

	r.SetTyping("alice", true)
	pushes := bob.byEvent(protocol.EventTyping)
	req.Len(pushes, 1)
	req.Equal(protocol.TypingPush{Users: []string{"alice"}}, pushes[0].data)

	// The typing set goes to all members, the typist included.
	req.Len(alice.byEvent(protocol.EventTyping), 1)

	r.SetTyping("alice", false)
	pushes = bob.byEvent(protocol.EventTyping)
	req.Len(pushes, 2)
	req.Equal(protocol.TypingPush{Users: []string{}}, pushes[1].data)

	// Stopping again is a no-op: no extra broadcast.
	r.SetTyping("alice", false)
	req.Len(bob.byEvent(protocol.EventTyping), 2)
}

func TestLeaveFreesNameAndClearsTyping(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	alice := newFakeSink("c1")
	bob := newFakeSink("c2")
	_, err := r.Join("c1", "alice", alice)
	req.NoError(err)
	_, err = r.Join("c2", "bob", bob)
	req.NoError(err)

	r.SetTyping("bob", true)
	r.Leave("bob")

	left := alice.byEvent(protocol.EventUserLeft)
	req.Len(left, 1)
	req.Equal("bob", left[0].data)
	req.Equal([]string{"alice"}, r.Members())
	req.Empty(r.Typing())

	// Departure cleared bob's typing entry and republished the set.
	typing := alice.byEvent(protocol.EventTyping)
	req.Equal(protocol.TypingPush{Users: []string{}}, typing[len(typing)-1].data)

	// The name is free for a new connection.
	_, err = r.Join("c3", "bob", newFakeSink("c3"))
	req.NoError(err)
}

func TestDuplicateMsgIDAppendsOnce(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	_, err := r.Join("c1", "alice", newFakeSink("c1"))
	req.NoError(err)

	first, err := r.Append("alice", "hello", true, "msg-1")
	req.NoError(err)
	retry, err := r.Append("alice", "hello", true, "msg-1")
	req.NoError(err)

	// The retry acks the originally stored message, timestamp included.
	req.Equal(first.Seq, retry.Seq)
	req.True(first.Timestamp.Equal(retry.Timestamp))
	req.Len(r.Messages(), 1)

	// A different id is a different logical message.
	third, err := r.Append("alice", "hello", true, "msg-2")
	req.NoError(err)
	req.Equal(first.Seq+1, third.Seq)
	req.Len(r.Messages(), 2)
}

func TestCloseIsIdempotentUnderRacingClosers(t *testing.T) {
	req := require.New(t)
	r := newRoom("room-1", "amber-falcon-01")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.close()
		}()
	}
	wg.Wait()

	req.ErrorIs(r.do(snapshotCmd{reply: make(chan snapshotReply, 1)}), ErrRoomClosed)
}

func TestMessageHistoryReplayedOnJoin(t *testing.T) {
	req := require.New(t)
	r := newTestRoom(t)
	_, err := r.Join("c1", "alice", newFakeSink("c1"))
	req.NoError(err)

	for i := 0; i < 3; i++ {
		_, err := r.Append("alice", fmt.Sprintf("msg-%d", i), true, "")
		req.NoError(err)
	}

	snap, err := r.Join("c2", "bob", newFakeSink("c2"))
	req.NoError(err)
	req.Len(snap.Messages, 3)
	req.Equal(int64(1), snap.Messages[0].Seq)
	req.Equal("msg-2", snap.Messages[2].Text)
}
