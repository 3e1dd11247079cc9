package object

import (
	"testing"

	"automata.ai/internal/sim/encoding"
)

func TestLog2(t *testing.T) {
	cases := map[int64]int{-5: 0, 0: 0, 1: 1, 2: 1, 3: 2, 6: 2, 7: 3, 127: 7}
	for in, want := range cases {
		if got := Log2(in); got != want {
			t.Fatalf("Log2(%d)=%d want %d", in, got, want)
		}
	}
}

func TestScale_SpeedCapped(t *testing.T) {
	o := New([]uint8{0}, 0)
	if got := o.Scale(100); got != 100 {
		t.Fatalf("speed 0: %d", got)
	}
	o.Attributes[Speed] = 3 // log2(4) = 2
	if got := o.Scale(100); got != 80 {
		t.Fatalf("speed 2: %d", got)
	}
	o.Attributes[Speed] = 127 // log2(128) = 7
	if got := o.Scale(100); got != 30 {
		t.Fatalf("speed 7: %d", got)
	}
}

func TestStageAdoptAndHalt(t *testing.T) {
	o := New([]uint8{0, 1, 2}, 5)
	if o.State != Restarting || o.StartedAt != 5 {
		t.Fatalf("new object: %+v", o)
	}
	o.Start(2, 9)
	o.Stage([]uint8{1})
	if !o.References(1) || o.References(3) {
		t.Fatalf("references wrong")
	}
	if !o.AdoptStaged() || o.Cursor != 0 || len(o.Ring) != 1 {
		t.Fatalf("adopt: %+v", o)
	}
	if o.AdoptStaged() {
		t.Fatalf("second adopt should be a no-op")
	}
	o.Stage([]uint8{2})
	o.Halt()
	if o.Staged != nil || o.State != Halted {
		t.Fatalf("halt must drop staged ring: %+v", o)
	}
}

func TestRemap_CoversStagedRing(t *testing.T) {
	o := New([]uint8{4, 1, 4}, 0)
	o.Stage([]uint8{4})
	o.Remap(4, 2)
	if o.Ring[0] != 2 || o.Ring[1] != 1 || o.Ring[2] != 2 || o.Staged[0] != 2 {
		t.Fatalf("remap: %+v", o)
	}
}

func TestObjectWords(t *testing.T) {
	o := New([]uint8{0, 1, 2}, 0)
	o.Attributes = [8]int8{3, 1, 2, 0, 0, 0, 0, -1}
	o.Start(1, 1<<40)
	o.Stage([]uint8{2, 2})

	w := encoding.NewWriter(Words)
	o.EncodeWords(w)
	if w.Len() != Words {
		t.Fatalf("words=%d", w.Len())
	}
	if w.Words()[1] != 0xffffffffff020100 {
		t.Fatalf("ring word=%#x", w.Words()[1])
	}
	got := Decode(encoding.NewReader(w.Words()))
	if got.State != Running || got.Cursor != 1 || got.StartedAt != 1<<40 {
		t.Fatalf("status: %+v", got)
	}
	if got.Attributes != o.Attributes || len(got.Ring) != 3 || len(got.Staged) != 2 {
		t.Fatalf("decoded %+v", got)
	}

	fresh := New([]uint8{1}, 0)
	w = encoding.NewWriter(Words)
	fresh.EncodeWords(w)
	if Decode(encoding.NewReader(w.Words())).Staged != nil {
		t.Fatalf("unstaged object decoded with a staged ring")
	}
}
