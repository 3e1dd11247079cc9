// Package object models the production machines a player installs. An object
// cycles through a ring of card slots; the owner's inventory and the
// scheduler live elsewhere.
package object

import (
	"math/bits"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/encoding"
)

type State uint8

const (
	Restarting State = iota
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Restarting:
		return "restarting"
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// NumAttributes is the size of an attribute array.
const NumAttributes = 8

// Attribute slots.
const (
	FeatureLevel = 0
	Speed        = 1
	Reduce       = 2
	Productivity = 3
)

// Words is the persisted size of one object.
const Words = 4

const maxSpeed = 9

type Object struct {
	Attributes [NumAttributes]int8 `json:"attributes"`
	Ring       []uint8             `json:"ring"`
	Cursor     uint8               `json:"cursor"`
	State      State               `json:"state"`
	// Staged replaces Ring at the next natural cycle boundary.
	Staged    []uint8 `json:"staged,omitempty"`
	StartedAt uint64  `json:"started_at"`
}

// New returns an object that has not fired yet.
func New(ring []uint8, counter uint64) Object {
	return Object{
		Ring:      append([]uint8(nil), ring...),
		State:     Restarting,
		StartedAt: counter,
	}
}

// SpeedLevel is min(floor(log2(speed+1)), 9).
func (o *Object) SpeedLevel() uint64 {
	return uint64(min(Log2(int64(o.Attributes[Speed])), maxSpeed))
}

// Scale shortens a card duration by the object's speed.
func (o *Object) Scale(duration uint64) uint64 {
	return duration * (10 - o.SpeedLevel()) / 10
}

// Start marks the object running at slot cursor.
func (o *Object) Start(cursor int, counter uint64) {
	o.Cursor = uint8(cursor)
	o.State = Running
	o.StartedAt = counter
}

// Halt stops the object and drops any staged ring.
func (o *Object) Halt() {
	o.State = Halted
	o.Staged = nil
}

// Restart installs ring on a halted object.
func (o *Object) Restart(ring []uint8, counter uint64) {
	o.Ring = append([]uint8(nil), ring...)
	o.Staged = nil
	o.Cursor = 0
	o.State = Restarting
	o.StartedAt = counter
}

// Stage queues ring for the next cycle boundary of a live object.
func (o *Object) Stage(ring []uint8) {
	o.Staged = append([]uint8(nil), ring...)
}

// AdoptStaged swaps in a staged ring, reporting whether there was one.
func (o *Object) AdoptStaged() bool {
	if o.Staged == nil {
		return false
	}
	o.Ring, o.Staged = o.Staged, nil
	o.Cursor = 0
	return true
}

// References reports whether cardIndex appears in the active or staged ring.
func (o *Object) References(cardIndex int) bool {
	for _, r := range [][]uint8{o.Ring, o.Staged} {
		for _, c := range r {
			if int(c) == cardIndex {
				return true
			}
		}
	}
	return false
}

// Remap rewrites every ring slot pointing at from to point at to.
func (o *Object) Remap(from, to uint8) {
	for _, r := range [][]uint8{o.Ring, o.Staged} {
		for i := range r {
			if r[i] == from {
				r[i] = to
			}
		}
	}
}

const noRing = ^uint64(0)

func (o Object) EncodeWords(w *encoding.Writer) {
	w.U64(encoding.PackInt8s(o.Attributes))
	w.U64(protocol.EncodeRing(o.Ring))
	if o.Staged == nil {
		w.U64(noRing)
	} else {
		w.U64(protocol.EncodeRing(o.Staged))
	}
	w.U64(uint64(o.State)<<56 | uint64(o.Cursor)<<48 | o.StartedAt&(1<<48-1))
}

func Decode(r *encoding.Reader) Object {
	var o Object
	o.Attributes = encoding.UnpackInt8s(r.U64())
	o.Ring = protocol.DecodeRing(r.U64())
	if staged := r.U64(); staged != noRing {
		o.Staged = protocol.DecodeRing(staged)
	}
	status := r.U64()
	o.State = State(status >> 56)
	o.Cursor = uint8(status >> 48)
	o.StartedAt = status & (1<<48 - 1)
	return o
}

// Log2 is floor(log2(v+1)), zero for v <= 0.
func Log2(v int64) int {
	if v <= 0 {
		return 0
	}
	return bits.Len64(uint64(v)+1) - 1
}
