package player

import (
	"math"
	"math/bits"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/object"
	"automata.ai/internal/sim/tuning"
)

const maxEnergy = math.MaxUint16

// Engine applies the economy rules of one tuning to player records. It holds
// no per-player state.
type Engine struct {
	t            tuning.Tuning
	defaultCards []card.Card
}

func NewEngine(t tuning.Tuning) *Engine {
	return &Engine{t: t, defaultCards: card.FromSpecs(t.DefaultCards)}
}

func (e *Engine) Tuning() tuning.Tuning { return e.t }

// New creates a fresh player record with its interest stamp rebased at counter.
func (e *Engine) New(pid [2]uint64, counter uint64) *Player {
	p := &Player{
		ID: pid,
		Data: Data{
			Level:    1,
			Energy:   e.t.Player.InitialEnergy,
			CostInfo: e.t.Player.CostRoundInitial,
			Local:    append(ResourceVector(nil), e.t.Player.DefaultLocal...),
			Cards:    append([]card.Card(nil), e.defaultCards...),
		},
	}
	p.Data.UpdateInterest(counter)
	return p
}

func addEnergy(cur uint16, n uint64) uint16 {
	if n >= maxEnergy || uint64(cur)+n > maxEnergy {
		return maxEnergy
	}
	return cur + uint16(n)
}

func log2u(v uint64) uint64 {
	if v == math.MaxUint64 {
		return 64
	}
	return uint64(bits.Len64(v+1) - 1)
}

// PayCost debits currentCost+base. Nothing changes when the balance is short.
func (e *Engine) PayCost(d *Data, base uint64) error {
	total, carry := bits.Add64(uint64(d.CurrentCost), base, 0)
	if carry != 0 {
		return protocol.ErrNotEnoughBalance
	}
	if err := d.Local.CostBalance(total); err != nil {
		return err
	}
	if d.CostInfo > 0 {
		d.CostInfo--
	}
	if d.CostInfo == 0 {
		d.CostInfo = e.t.Player.CostRound
		switch {
		case d.CurrentCost == 0:
			d.CurrentCost = 1
		case d.CurrentCost > math.MaxUint32/2:
			d.CurrentCost = math.MaxUint32
		default:
			d.CurrentCost *= 2
		}
	}
	d.Energy = addEnergy(d.Energy, uint64(e.t.Economy.PayCostEnergy))
	e.IncExp(d, uint32(log2u(uint64(d.CurrentCost))))
	return nil
}

func (e *Engine) levelThreshold(level uint16) uint32 {
	return e.t.Economy.LevelExpBase + e.t.Economy.LevelExpStep*uint32(level)
}

// IncExp adds experience, levelling up as many times as it covers.
func (e *Engine) IncExp(d *Data, a uint32) {
	exp := uint32(d.Exp) + a
	for d.Level < math.MaxUint16 {
		need := e.levelThreshold(d.Level)
		if need == 0 || exp < need {
			break
		}
		exp -= need
		d.Level++
	}
	d.Exp = uint16(min(exp, math.MaxUint16))
}

// CollectEnergy converts balance into energy once per interval. Inside the
// interval it is a successful no-op.
func (e *Engine) CollectEnergy(d *Data, counter uint64) error {
	cp := uint64(d.LastCheckpoint)
	if counter < cp || counter-cp < e.t.Economy.EnergyIntervalTicks {
		return nil
	}
	if d.Local.Balance() < e.t.Economy.EnergyFee {
		return protocol.ErrNotEnoughBalance
	}
	gain := log2u(d.Local.Balance()/e.t.Economy.EnergyBalanceUnit) * uint64(d.Level)
	d.Energy = addEnergy(d.Energy, gain)
	d.LastCheckpoint = uint32(counter)
	return d.Local.CostBalance(e.t.Economy.EnergyFee)
}

// UpdateInterest rebases the interest stamp to the current balance at counter.
func (d *Data) UpdateInterest(counter uint64) {
	d.LastInterestStamp = min(d.Local.Balance(), math.MaxUint32)<<32 | counter&math.MaxUint32
}

// accruedInterest is level*balance*elapsed/divisor, saturating at MaxInt64.
func (e *Engine) accruedInterest(d *Data, counter uint64) int64 {
	snapshot := min(d.LastInterestStamp>>32, d.Local.Balance())
	stamp := d.LastInterestStamp & math.MaxUint32
	if counter <= stamp {
		return 0
	}
	hi, lo := bits.Mul64(uint64(d.Level)*snapshot, counter-stamp)
	div := e.t.Economy.InterestDivisor
	if hi >= div {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, div)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// CollectInterest pays accrued interest net of a flat fee. The net is signed:
// when interest is below the fee the difference is charged to the balance.
func (e *Engine) CollectInterest(d *Data, counter uint64) error {
	net := e.accruedInterest(d, counter)
	fee := int64(min(e.t.Economy.InterestFee, math.MaxInt64))
	if net >= math.MinInt64+fee {
		net -= fee
	}
	if net < 0 && uint64(-net) > d.Local.Balance() {
		return protocol.ErrNotEnoughBalance
	}
	d.UpdateInterest(counter)
	if net < 0 {
		return d.Local.CostBalance(uint64(-net))
	}
	d.Local.IncBalance(uint64(net))
	return nil
}

// UpgradeObject pays the running cost and raises the feature level plus one
// other feature of an object.
func (e *Engine) UpgradeObject(d *Data, objectIndex, feature uint64) error {
	if objectIndex >= uint64(len(d.Objects)) {
		return protocol.ErrIndexOutOfBound
	}
	if feature == object.FeatureLevel || feature >= object.NumAttributes {
		return protocol.ErrIndexOutOfBound
	}
	o := &d.Objects[objectIndex]
	if o.Attributes[object.FeatureLevel] >= math.MaxInt8 || o.Attributes[feature] >= math.MaxInt8 {
		return ErrAttributeBound
	}
	if err := e.PayCost(d, 0); err != nil {
		return err
	}
	o.Attributes[object.FeatureLevel]++
	o.Attributes[feature]++
	return nil
}

// redeemSlots is the number of resource pools a bounty can redeem; the next
// index collects interest instead.
const redeemSlots = 7

// Bounty redeems resource pool index for balance, or collects interest when
// index is the interest slot.
func (e *Engine) Bounty(d *Data, index, counter uint64) error {
	switch {
	case index > redeemSlots:
		return ErrBountyIndex
	case index == redeemSlots:
		return e.CollectInterest(d, counter)
	case index >= uint64(len(d.Local)):
		return protocol.ErrIndexOutOfBound
	}
	n := d.RedeemInfo[index]
	cost := e.t.BountyCost(uint64(n))
	if n == math.MaxUint8 || cost > math.MaxInt64 || d.Local[index] <= int64(cost) {
		return protocol.ErrNotEnoughResource
	}
	d.Local[index] -= int64(cost)
	d.RedeemInfo[index]++
	d.Local.IncBalance(e.t.BountyReward(uint64(n)))
	e.IncExp(d, e.t.Bounty.Exp)
	return nil
}

// InstallCard pays for and generates one card from the seed.
func (e *Engine) InstallCard(d *Data, seed uint64) error {
	limit := e.t.Player.CardsPerLevel*int(d.Level) + e.t.Player.CardsBase
	if len(d.Cards) >= limit {
		return protocol.ErrNotEnoughLevel
	}
	if err := e.PayCost(d, 0); err != nil {
		return err
	}
	d.Cards = append(d.Cards, card.Generate(d.Level, d.Local, seed))
	return nil
}
