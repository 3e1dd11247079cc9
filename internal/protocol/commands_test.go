package protocol

import "testing"

func TestDecodeCommand_SplitsOpcodeAndNonce(t *testing.T) {
	c := DecodeCommand([]uint64{CommandWord(OpBidCard, 42), 3, 600})
	if c.Op != OpBidCard || c.Nonce != 42 {
		t.Fatalf("unexpected command %+v", c)
	}
	if c.Payload[0] != 3 || c.Payload[1] != 600 || c.Payload[2] != 0 {
		t.Fatalf("unexpected payload %v", c.Payload)
	}
}

func TestDecodeCommand_UnknownOpcodeIsTick(t *testing.T) {
	for _, op := range []uint64{0, 13, 200} {
		c := DecodeCommand([]uint64{CommandWord(op, 1)})
		if c.Op != OpTick {
			t.Fatalf("op %d: expected Tick, got %d", op, c.Op)
		}
	}
	if c := DecodeCommand(nil); c.Op != OpTick {
		t.Fatalf("empty params should decode as Tick")
	}
}

func TestDecodeCommand_IgnoresBitsBetweenOpcodeAndNonce(t *testing.T) {
	c := DecodeCommand([]uint64{0xab00 | OpSellCard | 9<<16})
	if c.Op != OpSellCard || c.Nonce != 9 {
		t.Fatalf("unexpected command %+v", c)
	}
}

func TestRingWord(t *testing.T) {
	w := EncodeRing([]uint8{0, 1, 2})
	if w != 0xffffffffff020100 {
		t.Fatalf("unexpected ring word %#x", w)
	}
	ring := DecodeRing(w)
	if len(ring) != 3 || ring[0] != 0 || ring[1] != 1 || ring[2] != 2 {
		t.Fatalf("unexpected ring %v", ring)
	}
	full := DecodeRing(0)
	if len(full) != MaxRing {
		t.Fatalf("zero word is a full ring of card 0, got %v", full)
	}
	if len(DecodeRing(^uint64(0))) != 0 {
		t.Fatalf("all-terminator word should decode empty")
	}
}

func TestAdminOnly(t *testing.T) {
	if !AdminOnly(OpTick) || !AdminOnly(OpDeposit) {
		t.Fatalf("tick and deposit are admin-only")
	}
	if AdminOnly(OpWithdraw) || AdminOnly(OpBidCard) {
		t.Fatalf("player ops must not be admin-only")
	}
}
