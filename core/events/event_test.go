package events

import (
	"math/big"
	"testing"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "test.bare" }

func TestBufferDrainAndReset(t *testing.T) {
	var buf Buffer
	buf.Emit(MintableSwitched{Mintable: true})
	buf.Emit(nil)
	buf.Emit(bareEvent{})

	drained := buf.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 events, got %d", len(drained))
	}
	if got := buf.Drain(); len(got) != 0 {
		t.Fatalf("expected empty buffer after drain, got %d", len(got))
	}

	buf.Emit(bareEvent{})
	buf.Reset()
	if got := buf.Drain(); len(got) != 0 {
		t.Fatalf("expected empty buffer after reset, got %d", len(got))
	}
}

func TestFanoutSkipsNilEmitters(t *testing.T) {
	var a, b Buffer
	Fanout{&a, nil, &b}.Emit(bareEvent{})
	if len(a.Drain()) != 1 || len(b.Drain()) != 1 {
		t.Fatalf("expected every emitter to receive the event")
	}
}

func TestFlatten(t *testing.T) {
	creator := [20]byte{0x01}
	flat := Flatten(DesignRegistered{ID: 3, Creator: creator, URI: "ipfs://card", MaxSupply: 5, Fee: big.NewInt(50)})
	if flat.Type != TypeDesignRegistered {
		t.Fatalf("unexpected type %q", flat.Type)
	}
	if flat.Attr("designId") != "3" || flat.Attr("fee") != "50" || flat.Attr("uri") != "ipfs://card" {
		t.Fatalf("unexpected attributes %v", flat.Attributes)
	}

	bare := Flatten(bareEvent{})
	if bare.Type != "test.bare" || len(bare.Attributes) != 0 {
		t.Fatalf("unexpected fallback payload %+v", bare)
	}
	if Flatten(nil) != nil {
		t.Fatalf("expected nil for nil event")
	}
}
