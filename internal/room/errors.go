package room

import "errors"

var (
	// ErrRoomNotFound signals an unknown room id. The caller is expected to
	// fall back to a fresh create/join flow.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNameTaken signals that the requested display name is already held by
	// a currently joined member. The attempt is terminal; the name frees up
	// only when its holder leaves or disconnects.
	ErrNameTaken = errors.New("name already taken")

	// ErrNotMember signals that the sender is not a current member of the
	// room it targeted.
	ErrNotMember = errors.New("not a member of this room")

	// ErrRoomClosed signals an operation against an evicted room. On the wire
	// it is indistinguishable from ErrRoomNotFound.
	ErrRoomClosed = errors.New("room closed")
)
