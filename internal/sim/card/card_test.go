package card

import (
	"testing"

	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/tuning"
)

func TestFromSpecs_Defaults(t *testing.T) {
	cards := FromSpecs(tuning.Defaults().DefaultCards)
	if len(cards) != 3 {
		t.Fatalf("len=%d", len(cards))
	}
	if cards[0].Duration != 100 || cards[0].Attributes != [8]int8{-2, -2, 4} {
		t.Fatalf("card0=%+v", cards[0])
	}
	for i, c := range cards {
		if c.Listed() {
			t.Fatalf("card %d listed at creation", i)
		}
	}
}

func TestCardWords(t *testing.T) {
	c := Card{Duration: 110, Attributes: [8]int8{3, 0, -2}, MarketID: 9}
	w := encoding.NewWriter(Words)
	c.EncodeWords(w)
	if w.Len() != Words {
		t.Fatalf("words=%d", w.Len())
	}
	if w.Words()[1] != 0x0000_0000_00fe_0003 {
		t.Fatalf("attribute word=%#x", w.Words()[1])
	}
	r := encoding.NewReader(w.Words())
	if got := Decode(r); got != c || r.Err() != nil {
		t.Fatalf("decoded %+v err=%v", got, r.Err())
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	local := []int64{30, 50, 0, 0, 2, 0, 0, 1000}
	for seed := uint64(0); seed < 64; seed++ {
		a := Generate(3, local, seed*0x9e3779b97f4a7c15)
		b := Generate(3, local, seed*0x9e3779b97f4a7c15)
		if a != b {
			t.Fatalf("seed %d: %+v != %+v", seed, a, b)
		}
		if a.Duration < minDuration || a.Duration >= minDuration+durationSpan {
			t.Fatalf("seed %d: duration %d", seed, a.Duration)
		}
		if a.Attributes[1] >= 0 {
			t.Fatalf("seed %d: expected richest pool to be consumed: %+v", seed, a)
		}
		if a.Attributes[7] != 0 {
			t.Fatalf("seed %d: balance slot touched", seed)
		}
		var pos, neg int
		for _, v := range a.Attributes {
			if v > 0 {
				pos++
			} else if v < 0 {
				neg++
			}
		}
		if pos != 1 || neg != 1 {
			t.Fatalf("seed %d: want one producer and one consumer: %+v", seed, a)
		}
	}
}

func TestGenerate_MagnitudeCapped(t *testing.T) {
	c := Generate(65535, []int64{1, 0, 0, 0, 0, 0, 0, 0}, 12345)
	for _, v := range c.Attributes {
		if v > maxMagnitude || v < -maxMagnitude {
			t.Fatalf("attribute %d exceeds cap", v)
		}
	}
}
