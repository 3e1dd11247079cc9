package player

import (
	"testing"

	"github.com/stretchr/testify/require"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/object"
)

func TestApplyModifier_AllOrNothing(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.Local = ResourceVector{1, 5, 0, 0, 0, 0, 0, 0}
	o := object.New([]uint8{0}, 0)

	ok := d.ApplyModifier(card.Card{Attributes: [8]int8{-2, 3}}, &o)
	require.False(t, ok)
	require.Equal(t, ResourceVector{1, 5, 0, 0, 0, 0, 0, 0}, d.Local)

	o.Attributes[object.Reduce] = 1
	o.Attributes[object.Productivity] = 3 // +2 on every produced pool
	ok = d.ApplyModifier(card.Card{Attributes: [8]int8{-2, 3, -1}}, &o)
	require.True(t, ok)
	// -2+1 = -1 applied; +3+2 applied; -1+1 = 0 absorbed entirely.
	require.Equal(t, ResourceVector{0, 10, 0, 0, 0, 0, 0, 0}, d.Local)
}

func TestApplyObjectCard_Cycle(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.Local = ResourceVector{30, 30, 0, 0, 0, 0, 0, 0}
	d.Objects = append(d.Objects, object.New([]uint8{0, 1, 2}, 0))

	// Restarting: no modifier, next delay comes from ring[0].
	next, ok := d.ApplyObjectCard(0, 100)
	require.True(t, ok)
	require.Equal(t, uint64(100), next)
	require.Equal(t, object.Running, d.Objects[0].State)
	require.Equal(t, ResourceVector{30, 30, 0, 0, 0, 0, 0, 0}, d.Local)

	// Running: card 0 applies, cursor advances to card 1.
	next, ok = d.ApplyObjectCard(0, 200)
	require.True(t, ok)
	require.Equal(t, uint64(110), next)
	require.Equal(t, uint8(1), d.Objects[0].Cursor)
	require.Equal(t, ResourceVector{28, 28, 4, 0, 0, 0, 0, 0}, d.Local)

	next, ok = d.ApplyObjectCard(0, 310)
	require.True(t, ok)
	require.Equal(t, uint64(120), next)
	require.Equal(t, ResourceVector{31, 28, 2, 0, 0, 0, 0, 0}, d.Local)
}

func TestApplyObjectCard_HaltsAndStaysHalted(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.Local = ResourceVector{1, 1, 0, 0, 0, 0, 0, 0}
	d.Objects = append(d.Objects, object.New([]uint8{0}, 0))

	_, ok := d.ApplyObjectCard(0, 1)
	require.True(t, ok)
	_, ok = d.ApplyObjectCard(0, 2)
	require.False(t, ok)
	require.Equal(t, object.Halted, d.Objects[0].State)

	before := append(ResourceVector(nil), d.Local...)
	_, ok = d.ApplyObjectCard(0, 3)
	require.False(t, ok)
	require.Equal(t, before, d.Local)
}

func TestRestartObjectCard_StagesOnLiveObject(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.Local = ResourceVector{30, 30, 0, 0, 0, 0, 0, 0}
	d.Objects = append(d.Objects, object.New([]uint8{0, 1}, 0))
	_, ok := d.ApplyObjectCard(0, 1)
	require.True(t, ok)

	_, scheduled := d.RestartObjectCard(0, []uint8{2}, 5)
	require.False(t, scheduled)
	require.Equal(t, []uint8{0, 1}, d.Objects[0].Ring)

	// The pending firing still runs card 0, then the staged ring takes over.
	next, ok := d.ApplyObjectCard(0, 10)
	require.True(t, ok)
	require.Equal(t, ResourceVector{28, 28, 4, 0, 0, 0, 0, 0}, d.Local)
	require.Equal(t, []uint8{2}, d.Objects[0].Ring)
	require.Equal(t, uint8(0), d.Objects[0].Cursor)
	require.Equal(t, uint64(120), next)
}

func TestRestartObjectCard_Halted(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	o := object.New([]uint8{0}, 0)
	o.Halt()
	d.Objects = append(d.Objects, o)

	dur, scheduled := d.RestartObjectCard(0, []uint8{1, 2}, 42)
	require.True(t, scheduled)
	require.Equal(t, uint64(110), dur)
	require.Equal(t, object.Restarting, d.Objects[0].State)
	require.Equal(t, uint64(42), d.Objects[0].StartedAt)
}

func TestValidateRing(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	require.NoError(t, ValidateRing(d, []uint8{0, 1, 2, 2}))
	require.ErrorIs(t, ValidateRing(d, nil), protocol.ErrIndexOutOfBound)
	require.ErrorIs(t, ValidateRing(d, []uint8{3}), protocol.ErrIndexOutOfBound)
	d.Cards[1].MarketID = 4
	require.ErrorIs(t, ValidateRing(d, []uint8{0, 1}), protocol.ErrCardIsInUse)
}
