package player

import (
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/object"
)

// ValidateRing checks that every slot names an owned, unlisted card.
func ValidateRing(d *Data, ring []uint8) error {
	if len(ring) == 0 || len(ring) > protocol.MaxRing {
		return protocol.ErrIndexOutOfBound
	}
	for _, idx := range ring {
		if int(idx) >= len(d.Cards) {
			return protocol.ErrIndexOutOfBound
		}
		if d.Cards[idx].Listed() {
			return protocol.ErrCardIsInUse
		}
	}
	return nil
}

func (d *Data) cardDuration(o *object.Object, slot int) (uint64, bool) {
	if slot >= len(o.Ring) || int(o.Ring[slot]) >= len(d.Cards) {
		return 0, false
	}
	return d.Cards[o.Ring[slot]].Duration, true
}

// ApplyObjectCard fires object objectIndex at counter. It returns the delay
// until the next firing, or false once the object has halted.
func (d *Data) ApplyObjectCard(objectIndex uint64, counter uint64) (uint64, bool) {
	if objectIndex >= uint64(len(d.Objects)) {
		return 0, false
	}
	o := &d.Objects[objectIndex]
	switch o.State {
	case object.Halted:
		return 0, false
	case object.Restarting:
		dur, ok := d.cardDuration(o, 0)
		if !ok {
			o.Halt()
			return 0, false
		}
		o.Start(0, counter)
		return o.Scale(dur), true
	}

	cursor := int(o.Cursor)
	if cursor >= len(o.Ring) || int(o.Ring[cursor]) >= len(d.Cards) {
		o.Halt()
		return 0, false
	}
	if !d.ApplyModifier(d.Cards[o.Ring[cursor]], o) {
		o.Halt()
		return 0, false
	}
	next := (cursor + 1) % len(o.Ring)
	if o.AdoptStaged() {
		next = 0
	}
	dur, ok := d.cardDuration(o, next)
	if !ok {
		o.Halt()
		return 0, false
	}
	o.Start(next, counter)
	return o.Scale(dur), true
}

// RestartObjectCard installs ring on a halted object and returns the first
// card's duration for the caller to schedule. On a live object the ring is
// only staged; its pending event keeps running the old ring once more.
func (d *Data) RestartObjectCard(objectIndex uint64, ring []uint8, counter uint64) (uint64, bool) {
	o := &d.Objects[objectIndex]
	if o.State != object.Halted {
		o.Stage(ring)
		return 0, false
	}
	o.Restart(ring, counter)
	dur, _ := d.cardDuration(o, 0)
	return dur, true
}

// ApplyModifier adds c's deltas to the resource vector, offset by the
// object's reduce and productivity. Either every pool changes or none does.
func (d *Data) ApplyModifier(c card.Card, o *object.Object) bool {
	reduce := int64(o.Attributes[object.Reduce])
	bonus := int64(object.Log2(int64(o.Attributes[object.Productivity])))
	n := min(len(d.Local), len(c.Attributes))
	for i := 0; i < n; i++ {
		if d.Local[i]+int64(c.Attributes[i])+reduce < 0 {
			return false
		}
	}
	for i := 0; i < n; i++ {
		delta := int64(c.Attributes[i])
		switch {
		case delta < 0:
			if g := delta + reduce; g < 0 {
				d.Local[i] += g
			}
		case delta > 0:
			d.Local[i] += delta + bonus
		}
	}
	return true
}
