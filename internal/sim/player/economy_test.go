package player

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/object"
	"automata.ai/internal/sim/tuning"
)

func newTestPlayer(t *testing.T, balance int64) (*Engine, *Player) {
	t.Helper()
	e := NewEngine(tuning.Defaults())
	p := e.New([2]uint64{1, 2}, 0)
	p.Data.Local[len(p.Data.Local)-1] = balance
	return e, p
}

func TestNew_Defaults(t *testing.T) {
	e, p := newTestPlayer(t, 0)
	tune := e.Tuning()
	require.Equal(t, uint16(1), p.Data.Level)
	require.Equal(t, tune.Player.CostRoundInitial, p.Data.CostInfo)
	require.Len(t, p.Data.Cards, len(tune.DefaultCards))
	require.Len(t, p.Data.Local, tuning.LocalSize)
	require.Zero(t, p.Nonce)

	// Records never share the default slices.
	p.Data.Local[0] = 999
	q := e.New([2]uint64{3, 4}, 0)
	require.Equal(t, tune.Player.DefaultLocal[0], q.Data.Local[0])
}

func TestPayCost_InsufficientBalanceChangesNothing(t *testing.T) {
	e, p := newTestPlayer(t, 5)
	p.Data.CurrentCost = 4
	before := p.Data
	before.Local = append(ResourceVector(nil), p.Data.Local...)

	err := e.PayCost(&p.Data, 2)
	require.ErrorIs(t, err, protocol.ErrNotEnoughBalance)
	require.Equal(t, before, p.Data)
}

func TestPayCost_EscalatesAfterRound(t *testing.T) {
	e, p := newTestPlayer(t, 1_000_000)
	rounds := int(p.Data.CostInfo)
	for i := 0; i < rounds; i++ {
		require.NoError(t, e.PayCost(&p.Data, 0))
	}
	require.Equal(t, uint32(1), p.Data.CurrentCost)
	require.Equal(t, e.Tuning().Player.CostRound, p.Data.CostInfo)
	require.Equal(t, uint16(20*rounds), p.Data.Energy)
	// Only the last payment (cost 1) earns experience: floor(log2(2)) = 1.
	require.Equal(t, uint16(1), p.Data.Exp)

	for i := 0; i < int(e.Tuning().Player.CostRound); i++ {
		require.NoError(t, e.PayCost(&p.Data, 0))
	}
	require.Equal(t, uint32(2), p.Data.CurrentCost)
	require.Equal(t, uint64(1_000_000-10), p.Data.Local.Balance())
}

func TestPayCost_EnergyCapped(t *testing.T) {
	e, p := newTestPlayer(t, 100)
	p.Data.Energy = math.MaxUint16 - 5
	require.NoError(t, e.PayCost(&p.Data, 0))
	require.Equal(t, uint16(math.MaxUint16), p.Data.Energy)
}

func TestIncExp_MultiLevel(t *testing.T) {
	e, p := newTestPlayer(t, 0)
	// Level 1 needs 110, level 2 needs 120.
	e.IncExp(&p.Data, 110+120+7)
	require.Equal(t, uint16(3), p.Data.Level)
	require.Equal(t, uint16(7), p.Data.Exp)
}

func TestCollectEnergy(t *testing.T) {
	e, p := newTestPlayer(t, 70_000)
	p.Data.Level = 2

	require.NoError(t, e.CollectEnergy(&p.Data, 999))
	require.Zero(t, p.Data.Energy)
	require.Equal(t, uint64(70_000), p.Data.Local.Balance())

	// floor(log2(7+1)) * level = 6
	require.NoError(t, e.CollectEnergy(&p.Data, 1000))
	require.Equal(t, uint16(6), p.Data.Energy)
	require.Equal(t, uint32(1000), p.Data.LastCheckpoint)
	require.Equal(t, uint64(69_999), p.Data.Local.Balance())

	_, broke := newTestPlayer(t, 0)
	err := e.CollectEnergy(&broke.Data, 5000)
	require.ErrorIs(t, err, protocol.ErrNotEnoughBalance)
	require.Zero(t, broke.Data.LastCheckpoint)
	require.Zero(t, broke.Data.Energy)
}

func TestCollectInterest_NetsFlatFee(t *testing.T) {
	e, p := newTestPlayer(t, 172_800_000)
	p.Data.UpdateInterest(0)
	p.Data.Level = 2

	// 2 * 172_800_000 * 100 / 172_800_000 = 200 interest, 100 fee.
	require.NoError(t, e.CollectInterest(&p.Data, 100))
	require.Equal(t, uint64(172_800_100), p.Data.Local.Balance())
	require.Equal(t, uint64(172_800_000)<<32|100, p.Data.LastInterestStamp)
}

func TestCollectInterest_ChargesFeeWithoutAccrual(t *testing.T) {
	e, p := newTestPlayer(t, 150)
	p.Data.UpdateInterest(10)
	require.NoError(t, e.CollectInterest(&p.Data, 10))
	require.Equal(t, uint64(50), p.Data.Local.Balance())

	stamp := p.Data.LastInterestStamp
	err := e.CollectInterest(&p.Data, 11)
	require.ErrorIs(t, err, protocol.ErrNotEnoughBalance)
	require.Equal(t, uint64(50), p.Data.Local.Balance())
	require.Equal(t, stamp, p.Data.LastInterestStamp)
}

func TestCollectInterest_SnapshotClampedToBalance(t *testing.T) {
	e, p := newTestPlayer(t, 1_000_000)
	p.Data.UpdateInterest(0)
	p.Data.Local[len(p.Data.Local)-1] = 1000
	// Snapshot is clamped to the current 1000, so 17280 ticks accrue nothing.
	require.NoError(t, e.CollectInterest(&p.Data, 17280))
	require.Equal(t, uint64(900), p.Data.Local.Balance())
}

func TestUpgradeObject(t *testing.T) {
	e, p := newTestPlayer(t, 100)
	p.Data.Objects = append(p.Data.Objects, object.New([]uint8{0}, 0))

	require.ErrorIs(t, e.UpgradeObject(&p.Data, 1, 2), protocol.ErrIndexOutOfBound)
	require.ErrorIs(t, e.UpgradeObject(&p.Data, 0, 0), protocol.ErrIndexOutOfBound)
	require.ErrorIs(t, e.UpgradeObject(&p.Data, 0, 8), protocol.ErrIndexOutOfBound)

	require.NoError(t, e.UpgradeObject(&p.Data, 0, object.Speed))
	require.Equal(t, int8(1), p.Data.Objects[0].Attributes[object.FeatureLevel])
	require.Equal(t, int8(1), p.Data.Objects[0].Attributes[object.Speed])

	p.Data.Objects[0].Attributes[object.FeatureLevel] = math.MaxInt8
	require.ErrorIs(t, e.UpgradeObject(&p.Data, 0, object.Speed), ErrAttributeBound)
	require.Equal(t, int8(1), p.Data.Objects[0].Attributes[object.Speed])
}

func TestBounty(t *testing.T) {
	e, p := newTestPlayer(t, 0)
	tune := e.Tuning()
	p.Data.Local[0] = int64(tune.BountyCost(0)) + 1

	require.NoError(t, e.Bounty(&p.Data, 0, 0))
	require.Equal(t, int64(1), p.Data.Local[0])
	require.Equal(t, uint8(1), p.Data.RedeemInfo[0])
	require.Equal(t, tune.BountyReward(0), p.Data.Local.Balance())
	require.Equal(t, uint16(tune.Bounty.Exp), p.Data.Exp)

	// Equal to cost is not enough.
	p.Data.Local[1] = int64(tune.BountyCost(0))
	require.ErrorIs(t, e.Bounty(&p.Data, 1, 0), protocol.ErrNotEnoughResource)

	require.ErrorIs(t, e.Bounty(&p.Data, 8, 0), ErrBountyIndex)
}

func TestInstallCard_LevelLimit(t *testing.T) {
	e, p := newTestPlayer(t, 1000)
	limit := e.Tuning().Player.CardsPerLevel + e.Tuning().Player.CardsBase
	for len(p.Data.Cards) < limit {
		require.NoError(t, e.InstallCard(&p.Data, uint64(len(p.Data.Cards))*7919))
	}
	require.ErrorIs(t, e.InstallCard(&p.Data, 1), protocol.ErrNotEnoughLevel)
}
