package protocol

import "strconv"

// Code is a recoverable domain failure. It is returned as the numeric status
// of a transaction; 0 means success and is never a Code value.
type Code uint32

const (
	ErrPlayerAlreadyExist   Code = 1
	ErrPlayerNotExist       Code = 2
	ErrNotEnoughBalance     Code = 3
	ErrIndexOutOfBound      Code = 4
	ErrNotEnoughResource    Code = 5
	ErrNotEnoughLevel       Code = 6
	ErrNotEnoughPool        Code = 7
	ErrCardIsInUse          Code = 8
	ErrBidPriceInsufficient Code = 9
	ErrNoBidder             Code = 10
)

// StatusOK is the status of a committed transaction.
const StatusOK uint32 = 0

var codeNames = map[Code]string{
	ErrPlayerAlreadyExist:   "PlayerAlreadyExist",
	ErrPlayerNotExist:       "PlayerNotExist",
	ErrNotEnoughBalance:     "NotEnoughBalance",
	ErrIndexOutOfBound:      "IndexOutofBound",
	ErrNotEnoughResource:    "NotEnoughResource",
	ErrNotEnoughLevel:       "NotEnoughLevel",
	ErrNotEnoughPool:        "NotEnoughFundInPool",
	ErrCardIsInUse:          "CardIsInUse",
	ErrBidPriceInsufficient: "BidPriceInSufficient",
	ErrNoBidder:             "NoBidder",
}

func (c Code) Error() string { return CodeName(uint32(c)) }

// CodeName renders a status for logs and API responses.
func CodeName(status uint32) string {
	if status == StatusOK {
		return "OK"
	}
	if n, ok := codeNames[Code(status)]; ok {
		return n
	}
	return "Unknown(" + strconv.FormatUint(uint64(status), 10) + ")"
}

func IsKnownCode(status uint32) bool {
	if status == StatusOK {
		return true
	}
	_, ok := codeNames[Code(status)]
	return ok
}
