package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndGet(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(0)
	defer reg.Close()

	r1 := reg.CreateRoom()
	r2 := reg.CreateRoom()

	req.NotEqual(r1.ID(), r2.ID())
	req.NotEmpty(r1.Name())
	req.NotEqual(r1.ID(), r1.Name())

	got, err := reg.Get(r1.ID())
	req.NoError(err)
	req.Same(r1, got)

	_, err = reg.Get("no-such-room")
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestRegistryEvictsIdleRooms(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(10 * time.Millisecond)
	defer reg.Close()

	idle := reg.CreateRoom()
	occupied := reg.CreateRoom()
	_, err := occupied.Join("c1", "alice", newFakeSink("c1"))
	req.NoError(err)

	time.Sleep(20 * time.Millisecond)
	req.Equal(1, reg.EvictIdle())

	_, err = reg.Get(idle.ID())
	req.ErrorIs(err, ErrRoomNotFound)
	_, err = reg.Get(occupied.ID())
	req.NoError(err)

	// Once the last member leaves, the idle clock starts.
	occupied.Leave("alice")
	time.Sleep(20 * time.Millisecond)
	req.Equal(1, reg.EvictIdle())
	req.Equal(0, reg.Len())
}

func TestJoinRacingEvictionFailsClosed(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(time.Minute)

	r := reg.CreateRoom()
	reg.Close()

	_, err := r.Join("c1", "alice", newFakeSink("c1"))
	req.ErrorIs(err, ErrRoomClosed)
	req.Nil(r.Members())
}

func TestEvictionCannotOrphanAckedJoin(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(time.Nanosecond)
	defer reg.Close()

	// Race a join against the sweep over and over. Either the join loses and
	// fails closed, or it wins and the room must stay registered and usable.
	for i := 0; i < 100; i++ {
		r := reg.CreateRoom()

		joinErr := make(chan error, 1)
		go func() {
			_, err := r.Join("c1", "alice", newFakeSink("c1"))
			joinErr <- err
		}()
		go reg.EvictIdle()

		err := <-joinErr
		if err != nil {
			req.ErrorIs(err, ErrRoomClosed)
			continue
		}

		got, err := reg.Get(r.ID())
		req.NoError(err, "acked join must keep the room registered")
		req.Same(r, got)
		_, err = r.Append("alice", "still alive", true, "")
		req.NoError(err)

		r.Leave("alice")
		reg.EvictIdle()
	}
}

func TestEvictionDisabledWithoutTTL(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(0)
	defer reg.Close()

	reg.CreateRoom()
	time.Sleep(5 * time.Millisecond)
	req.Equal(0, reg.EvictIdle())
	req.Equal(1, reg.Len())
}
