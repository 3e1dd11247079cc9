package txmsg

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"automata.ai/internal/persistence/kvstore"
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/tuning"
	"automata.ai/internal/sim/world"
)

func envelope(t *testing.T, key [4]uint64, params ...uint64) []byte {
	t.Helper()
	b, err := json.Marshal(protocol.TxMsg{
		Type:            protocol.TypeTx,
		ProtocolVersion: protocol.Version,
		PKey:            protocol.FormatWords(key[:]),
		Params:          protocol.FormatWords(params),
	})
	require.NoError(t, err)
	return b
}

const peer = "127.0.0.1:40000"

func submit(ctx context.Context, w *world.World, raw []byte) (protocol.TxResultMsg, error) {
	return Submit(ctx, w, raw, tuning.Defaults().AdminKeyWords(), peer)
}

func TestSubmit(t *testing.T) {
	w, err := world.New(world.Config{Tuning: tuning.Defaults()}, kvstore.NewMemStore())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	key := [4]uint64{1, 10, 11, 0}
	res, err := submit(ctx, w, envelope(t, key, protocol.CommandWord(protocol.OpInstallPlayer, 0)))
	require.NoError(t, err)
	require.Equal(t, protocol.TypeTxResult, res.Type)
	require.Equal(t, uint64(1), res.Seq)
	require.Equal(t, "OK", res.StatusName)
	require.NotEmpty(t, res.Digest)
	require.Empty(t, res.Error)

	res, err = submit(ctx, w, envelope(t, key, protocol.CommandWord(protocol.OpInstallPlayer, 0)))
	require.NoError(t, err)
	require.Equal(t, uint32(protocol.ErrPlayerAlreadyExist), res.Status)
	require.Equal(t, uint64(2), res.Seq)

	// Non-zero token index on a withdrawal rejects the whole transaction.
	res, err = submit(ctx, w, envelope(t, key, protocol.CommandWord(protocol.OpWithdraw, 0), 1, 0, 5))
	require.NoError(t, err)
	require.NotEmpty(t, res.Error)
	require.Zero(t, res.Seq)

	_, err = submit(ctx, w, []byte(`{"type":"TX","pkey":["1"]}`))
	require.Error(t, err)
}

func TestSubmit_AdminKeyLoopbackOnly(t *testing.T) {
	w, err := world.New(world.Config{Tuning: tuning.Defaults()}, kvstore.NewMemStore())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	admin := tuning.Defaults().AdminKeyWords()
	tick := envelope(t, admin, protocol.CommandWord(protocol.OpTick, 0))

	for _, remote := range []string{"203.0.113.7:5000", "[2001:db8::1]:443", "not-an-addr"} {
		_, err := Submit(ctx, w, tick, admin, remote)
		require.ErrorIs(t, err, ErrAdminRemote, remote)
	}
	var counter uint64
	require.NoError(t, w.Query(ctx, func(w *world.World) { counter = w.Counter() }))
	require.Zero(t, counter)

	res, err := Submit(ctx, w, tick, admin, "[::1]:5000")
	require.NoError(t, err)
	require.Equal(t, "OK", res.StatusName)

	// Non-admin keys are accepted from any peer.
	res, err = Submit(ctx, w, envelope(t, [4]uint64{4, 40, 41, 0}, protocol.CommandWord(protocol.OpInstallPlayer, 0)), admin, "203.0.113.7:5000")
	require.NoError(t, err)
	require.Equal(t, "OK", res.StatusName)
}

func TestEvents(t *testing.T) {
	evs := []world.MarketEvent{{ID: 7, Kind: 2, Words: []uint64{7, 1, 2}}}
	msgs := Events(42, evs)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.TypeEvent, msgs[0].Type)
	require.Equal(t, uint64(42), msgs[0].Seq)
	require.Equal(t, uint64(7), msgs[0].EventID)
	require.Equal(t, []string{"7", "1", "2"}, msgs[0].Data)
}
