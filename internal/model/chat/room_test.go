package chat

import (
	"errors"
	"testing"
)

func TestRoomIDIsCommutative(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"64b7f0c2e1", "64b7f0c2e2"},
		{"alice", "bob"},
	}
	for _, p := range pairs {
		ab, err := RoomID(p[0], p[1])
		if err != nil {
			t.Fatalf("RoomID(%s,%s) err: %v", p[0], p[1], err)
		}
		ba, err := RoomID(p[1], p[0])
		if err != nil {
			t.Fatalf("RoomID(%s,%s) err: %v", p[1], p[0], err)
		}
		if ab != ba {
			t.Fatalf("expected same room for %v, got %s and %s", p, ab, ba)
		}
		if len(ab) != roomIDLength {
			t.Fatalf("unexpected room id length %d", len(ab))
		}
	}
}

func TestRoomIDDistinguishesPairs(t *testing.T) {
	a, _ := RoomID("u1", "u2")
	b, _ := RoomID("u1", "u3")
	if a == b {
		t.Fatal("different pairs must not share a room")
	}

	// Separator keeps ("ab","c") and ("a","bc") apart.
	c, _ := RoomID("ab", "c")
	d, _ := RoomID("a", "bc")
	if c == d {
		t.Fatal("concatenation collision")
	}
}

func TestRoomIDRejectsInvalidPairs(t *testing.T) {
	cases := [][2]string{{"", "u2"}, {"u1", " "}, {"u1", "u1"}}
	for _, c := range cases {
		if _, err := RoomID(c[0], c[1]); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("RoomID(%q,%q): expected ErrInvalidArgument, got %v", c[0], c[1], err)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	storage := Storage("users.get", errors.New("socket closed"))
	if !errors.Is(storage, ErrStorage) || !Retryable(storage) {
		t.Fatalf("expected retryable storage error, got %v", storage)
	}
	if Storage("noop", nil) != nil {
		t.Fatal("nil error must stay nil")
	}

	nf := NotFound("room", "r1")
	if Storage("rooms.find", nf) != nf {
		t.Fatal("not found must not be reclassified as storage")
	}
	if Retryable(nf) {
		t.Fatal("not found is terminal")
	}

	partial := &PartialFailure{Op: "deleteConversation", ConversationID: "c1", Pending: []string{"u2"}, Err: storage}
	if !errors.Is(partial, ErrPartialCascade) || !Retryable(partial) {
		t.Fatalf("expected retryable partial failure, got %v", partial)
	}
	var se *StorageError
	if !errors.As(partial, &se) || se.Op != "users.get" {
		t.Fatal("partial failure should unwrap to the storage cause")
	}
}
