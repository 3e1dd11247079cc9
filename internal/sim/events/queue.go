// Package events is the logical clock. Pending events live in a delta list:
// each entry stores the ticks remaining after the entry before it.
package events

import "automata.ai/internal/sim/encoding"

type Event struct {
	ObjectIndex uint64    `json:"object_index"`
	Owner       [2]uint64 `json:"owner"`
	Delta       uint64    `json:"delta"`
}

// EventWords is the persisted size of one event.
const EventWords = 4

type Queue struct {
	Counter uint64
	list    []Event
}

// Len is the number of pending events.
func (q *Queue) Len() int { return len(q.list) }

// Clone returns an independent copy.
func (q *Queue) Clone() *Queue {
	return &Queue{Counter: q.Counter, list: append([]Event(nil), q.list...)}
}

// Insert schedules ev to fire ev.Delta ticks from now. Zero is treated as one
// tick: nothing fires during the tick that scheduled it.
func (q *Queue) Insert(ev Event) {
	d := max(ev.Delta, 1)
	i := 0
	for ; i < len(q.list); i++ {
		if d < q.list[i].Delta {
			q.list[i].Delta -= d
			break
		}
		d -= q.list[i].Delta
	}
	ev.Delta = d
	q.list = append(q.list, Event{})
	copy(q.list[i+1:], q.list[i:])
	q.list[i] = ev
}

// Pending returns every event with its absolute remaining delay.
func (q *Queue) Pending() []Event {
	out := make([]Event, len(q.list))
	var acc uint64
	for i, ev := range q.list {
		acc += ev.Delta
		ev.Delta = acc
		out[i] = ev
	}
	return out
}

// Tick advances the clock by one and fires every due event in schedule order.
// fire returns the delay before the event should fire again, if at all.
func (q *Queue) Tick(fire func(Event) (uint64, bool)) {
	q.Counter++
	if len(q.list) == 0 {
		return
	}
	q.list[0].Delta--
	n := 0
	for n < len(q.list) && q.list[n].Delta == 0 {
		n++
	}
	due := append([]Event(nil), q.list[:n]...)
	q.list = q.list[n:]
	for _, ev := range due {
		if next, ok := fire(ev); ok {
			ev.Delta = next
			q.Insert(ev)
		}
	}
}

func (q *Queue) EncodeWords(w *encoding.Writer) {
	w.U64(q.Counter)
	w.U64(uint64(len(q.list)))
	for _, ev := range q.list {
		w.U64(ev.ObjectIndex)
		w.U64(ev.Owner[0])
		w.U64(ev.Owner[1])
		w.U64(ev.Delta)
	}
}

func Decode(r *encoding.Reader) (*Queue, error) {
	q := &Queue{Counter: r.U64()}
	n := r.Count(EventWords)
	q.list = make([]Event, 0, n)
	for i := 0; i < n; i++ {
		q.list = append(q.list, Event{
			ObjectIndex: r.U64(),
			Owner:       [2]uint64{r.U64(), r.U64()},
			Delta:       r.U64(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return q, nil
}
