package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults_Validate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverridesKeepDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "admin_key: [1, 2, 3, 0x10]\npreempt_every_ticks: 32\nbounty:\n  cost_base: 7\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.AdminKeyWords() != [4]uint64{1, 2, 3, 16} {
		t.Fatalf("admin key: %v", tune.AdminKey)
	}
	if tune.PreemptEveryTicks != 32 || tune.Bounty.CostBase != 7 {
		t.Fatalf("overrides not applied: %+v", tune)
	}
	if tune.Bounty.RewardBase != Defaults().Bounty.RewardBase {
		t.Fatalf("reward base lost its default: %d", tune.Bounty.RewardBase)
	}
	if len(tune.DefaultCards) != 3 {
		t.Fatalf("default cards lost: %d", len(tune.DefaultCards))
	}
}

func TestLoad_RejectsBadCards(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "default_cards:\n  - name: broken\n    duration: 0\n    attributes: [1, 2]\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(p)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "zero duration") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBountyShiftIsCapped(t *testing.T) {
	tune := Defaults()
	if got := tune.BountyCost(3); got != tune.Bounty.CostBase<<3 {
		t.Fatalf("cost(3)=%d", got)
	}
	if tune.BountyReward(200) != tune.BountyReward(32) {
		t.Fatalf("reward shift not capped")
	}
}
