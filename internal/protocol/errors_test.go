package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKnownCode(t *testing.T) {
	cases := []Code{
		ErrPlayerAlreadyExist,
		ErrPlayerNotExist,
		ErrNotEnoughBalance,
		ErrIndexOutOfBound,
		ErrNotEnoughResource,
		ErrNotEnoughLevel,
		ErrNotEnoughPool,
		ErrCardIsInUse,
		ErrBidPriceInsufficient,
		ErrNoBidder,
	}
	if !IsKnownCode(StatusOK) {
		t.Fatalf("expected OK known")
	}
	for i, c := range cases {
		if uint32(c) != uint32(i+1) {
			t.Fatalf("code %s: want numeric %d got %d", c, i+1, uint32(c))
		}
		if !IsKnownCode(uint32(c)) {
			t.Fatalf("expected known code: %d", c)
		}
	}
	if IsKnownCode(99) {
		t.Fatalf("expected unknown code rejected")
	}
	if CodeName(99) != "Unknown(99)" {
		t.Fatalf("unexpected name %q", CodeName(99))
	}
}

func TestCode_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("bid: %w", ErrNoBidder)
	var c Code
	if !errors.As(err, &c) || c != ErrNoBidder {
		t.Fatalf("expected ErrNoBidder through wrap, got %v", err)
	}
}
