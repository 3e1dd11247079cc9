package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every economy constant the state machine reads. A running
// ledger must keep the same tuning for its whole history: replicas with
// different tuning diverge.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// AdminKey gates Tick and Deposit.
	AdminKey []uint64 `yaml:"admin_key"`

	InitialSupplier   uint64 `yaml:"initial_supplier"`
	InitialBountyPool uint64 `yaml:"initial_bounty_pool"`
	PreemptEveryTicks uint64 `yaml:"preempt_every_ticks"`

	Player  PlayerTuning  `yaml:"player"`
	Economy EconomyTuning `yaml:"economy"`
	Bounty  BountyTuning  `yaml:"bounty"`

	DefaultCards []CardSpec `yaml:"default_cards"`
}

type PlayerTuning struct {
	DefaultLocal     []int64 `yaml:"default_local"`
	InitialEnergy    uint16  `yaml:"initial_energy"`
	CostRoundInitial uint16  `yaml:"cost_round_initial"`
	CostRound        uint16  `yaml:"cost_round"`
	ObjectLimit      int     `yaml:"object_limit"`
	CardsPerLevel    int     `yaml:"cards_per_level"`
	CardsBase        int     `yaml:"cards_base"`
}

type EconomyTuning struct {
	InstallObjectCost uint64 `yaml:"install_object_cost"`
	PayCostEnergy     uint32 `yaml:"pay_cost_energy"`
	LevelExpBase      uint32 `yaml:"level_exp_base"`
	LevelExpStep      uint32 `yaml:"level_exp_step"`

	EnergyIntervalTicks uint64 `yaml:"energy_interval_ticks"`
	EnergyBalanceUnit   uint64 `yaml:"energy_balance_unit"`
	EnergyFee           uint64 `yaml:"energy_fee"`

	InterestDivisor uint64 `yaml:"interest_divisor"`
	InterestFee     uint64 `yaml:"interest_fee"`
}

type BountyTuning struct {
	CostBase   uint64 `yaml:"cost_base"`
	RewardBase uint64 `yaml:"reward_base"`
	MaxShift   uint   `yaml:"max_shift"`
	Exp        uint32 `yaml:"exp"`
}

type CardSpec struct {
	Name       string  `yaml:"name"`
	Duration   uint64  `yaml:"duration"`
	Attributes []int64 `yaml:"attributes"`
}

// LocalSize is the length of every resource vector; the last slot is the balance.
const LocalSize = 8

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		AdminKey:          []uint64{0, 0, 0, 0},
		InitialSupplier:   1000,
		InitialBountyPool: 20_000_000,
		PreemptEveryTicks: 16,
		Player: PlayerTuning{
			DefaultLocal:     []int64{30, 30, 0, 0, 2, 0, 0, 0},
			InitialEnergy:    0,
			CostRoundInitial: 10,
			CostRound:        10,
			ObjectLimit:      24,
			CardsPerLevel:    4,
			CardsBase:        4,
		},
		Economy: EconomyTuning{
			InstallObjectCost:   1000,
			PayCostEnergy:       20,
			LevelExpBase:        100,
			LevelExpStep:        10,
			EnergyIntervalTicks: 1000,
			EnergyBalanceUnit:   10000,
			EnergyFee:           1,
			InterestDivisor:     10000 * 17280,
			InterestFee:         100,
		},
		Bounty: BountyTuning{
			CostBase:   10,
			RewardBase: 50,
			MaxShift:   32,
			Exp:        5,
		},
		DefaultCards: []CardSpec{
			{Name: "Biogen", Duration: 100, Attributes: []int64{-2, -2, 4, 0, 0, 0, 0, 0}},
			{Name: "Crystara", Duration: 110, Attributes: []int64{3, 0, -2, 0, 0, 0, 0, 0}},
			{Name: "AstroMine", Duration: 120, Attributes: []int64{0, 3, -2, 0, 0, 0, 0, 0}},
		},
	}
}

// Load reads a tuning file. Fields missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if len(t.AdminKey) != 4 {
		errs = append(errs, fmt.Errorf("admin_key: want 4 words, got %d", len(t.AdminKey)))
	}
	if len(t.Player.DefaultLocal) != LocalSize {
		errs = append(errs, fmt.Errorf("player.default_local: want %d entries, got %d", LocalSize, len(t.Player.DefaultLocal)))
	}
	for i, v := range t.Player.DefaultLocal {
		if v < 0 {
			errs = append(errs, fmt.Errorf("player.default_local[%d] is negative", i))
		}
	}
	if t.Player.CostRoundInitial == 0 || t.Player.CostRound == 0 {
		errs = append(errs, errors.New("player cost rounds must be positive"))
	}
	if t.PreemptEveryTicks == 0 {
		errs = append(errs, errors.New("preempt_every_ticks must be positive"))
	}
	if t.Economy.InterestDivisor == 0 || t.Economy.EnergyBalanceUnit == 0 {
		errs = append(errs, errors.New("economy divisors must be positive"))
	}
	if t.Bounty.MaxShift > 32 {
		errs = append(errs, fmt.Errorf("bounty.max_shift %d exceeds 32", t.Bounty.MaxShift))
	}
	if len(t.DefaultCards) == 0 {
		errs = append(errs, errors.New("default_cards is empty"))
	}
	for i, c := range t.DefaultCards {
		if c.Duration == 0 {
			errs = append(errs, fmt.Errorf("default_cards[%d]: zero duration", i))
		}
		if len(c.Attributes) != LocalSize {
			errs = append(errs, fmt.Errorf("default_cards[%d]: want %d attributes, got %d", i, LocalSize, len(c.Attributes)))
		}
		for _, a := range c.Attributes {
			if a < -128 || a > 127 {
				errs = append(errs, fmt.Errorf("default_cards[%d]: attribute %d out of int8 range", i, a))
			}
		}
	}
	return errors.Join(errs...)
}

// AdminKeyWords returns the admin key as a fixed array.
func (t Tuning) AdminKeyWords() [4]uint64 {
	var k [4]uint64
	copy(k[:], t.AdminKey)
	return k
}

// BountyCost is the resource cost of the n-th redemption of one bounty slot.
func (t Tuning) BountyCost(n uint64) uint64 {
	return t.Bounty.CostBase << min(uint(n), t.Bounty.MaxShift)
}

// BountyReward is the balance paid for the n-th redemption of one bounty slot.
func (t Tuning) BountyReward(n uint64) uint64 {
	return t.Bounty.RewardBase << min(uint(n), t.Bounty.MaxShift)
}
