package room

import (
	"fmt"
	"math/rand"
)

var nameAdjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "coral", "crimson", "eager",
	"fuzzy", "gentle", "golden", "jolly", "keen", "lively", "mellow", "nimble",
	"quiet", "rapid", "silver", "sunny", "swift", "vivid", "wild", "witty",
}

var nameNouns = []string{
	"falcon", "harbor", "comet", "willow", "badger", "canyon", "dolphin",
	"ember", "glacier", "heron", "lagoon", "meadow", "otter", "pebble",
	"quill", "raven", "sparrow", "thicket", "tundra", "walnut", "zephyr",
}

// newRoomName returns a human-friendly display label for a fresh room. It is
// a label only; the room id is the unguessable token.
func newRoomName() string {
	adj := nameAdjectives[rand.Intn(len(nameAdjectives))]
	noun := nameNouns[rand.Intn(len(nameNouns))]
	return fmt.Sprintf("%s-%s-%02d", adj, noun, rand.Intn(100))
}
