package events

import (
	"testing"

	"automata.ai/internal/sim/encoding"
)

func ev(obj, delay uint64) Event {
	return Event{ObjectIndex: obj, Owner: [2]uint64{1, 2}, Delta: delay}
}

func TestInsert_KeepsDeltaOrder(t *testing.T) {
	var q Queue
	q.Insert(ev(0, 10))
	q.Insert(ev(1, 4))
	q.Insert(ev(2, 10))
	q.Insert(ev(3, 0))

	got := q.Pending()
	want := []uint64{1, 4, 10, 10}
	order := []uint64{3, 1, 0, 2}
	for i := range want {
		if got[i].Delta != want[i] || got[i].ObjectIndex != order[i] {
			t.Fatalf("pending[%d]=%+v, want obj %d at %d", i, got[i], order[i], want[i])
		}
	}
}

func TestTick_FiresOnScheduleAndReschedules(t *testing.T) {
	var q Queue
	q.Insert(ev(0, 3))
	q.Insert(ev(1, 3))
	q.Insert(ev(2, 5))

	var fired []uint64
	fire := func(e Event) (uint64, bool) {
		fired = append(fired, q.Counter<<8|e.ObjectIndex)
		return 2, e.ObjectIndex == 0
	}
	for i := 0; i < 6; i++ {
		q.Tick(fire)
	}
	// obj0 and obj1 at tick 3; obj2 then the rescheduled obj0 at tick 5.
	want := []uint64{3<<8 | 0, 3<<8 | 1, 5<<8 | 2, 5<<8 | 0}
	if len(fired) != len(want) {
		t.Fatalf("fired=%v", fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired[%d]=%#x want %#x", i, fired[i], want[i])
		}
	}
	if q.Counter != 6 || q.Len() != 1 {
		t.Fatalf("counter=%d len=%d", q.Counter, q.Len())
	}
}

func TestTick_ZeroDelayRescheduleWaitsOneTick(t *testing.T) {
	var q Queue
	q.Insert(ev(0, 1))
	calls := 0
	q.Tick(func(Event) (uint64, bool) { calls++; return 0, true })
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
	q.Tick(func(Event) (uint64, bool) { calls++; return 0, false })
	if calls != 2 || q.Len() != 0 {
		t.Fatalf("calls=%d len=%d", calls, q.Len())
	}
}

func TestQueueWords(t *testing.T) {
	q := &Queue{Counter: 77}
	q.Insert(ev(0, 9))
	q.Insert(ev(4, 2))
	clone := q.Clone()
	clone.Insert(ev(5, 1))

	w := encoding.NewWriter(0)
	q.EncodeWords(w)
	if w.Len() != 2+2*EventWords {
		t.Fatalf("words=%d", w.Len())
	}
	got, err := Decode(encoding.NewReader(w.Words()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Counter != 77 || got.Len() != 2 || got.Pending()[1].Delta != 9 {
		t.Fatalf("decoded %+v", got.Pending())
	}
	if _, err := Decode(encoding.NewReader(w.Words()[:4])); err == nil {
		t.Fatalf("expected short data error")
	}
}
