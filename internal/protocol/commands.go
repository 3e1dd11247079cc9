package protocol

// Opcodes occupy the low byte of the first command word. Anything outside
// 1..12 decodes as Tick.
const (
	OpTick             uint64 = 0
	OpInstallPlayer    uint64 = 1
	OpInstallObject    uint64 = 2
	OpRestartObject    uint64 = 3
	OpUpgradeObject    uint64 = 4
	OpInstallCard      uint64 = 5
	OpWithdraw         uint64 = 6
	OpDeposit          uint64 = 7
	OpBounty           uint64 = 8
	OpCollectEnergy    uint64 = 9
	OpListCardInMarket uint64 = 10
	OpBidCard          uint64 = 11
	OpSellCard         uint64 = 12
)

var opNames = map[uint64]string{
	OpTick:             "Tick",
	OpInstallPlayer:    "InstallPlayer",
	OpInstallObject:    "InstallObject",
	OpRestartObject:    "RestartObject",
	OpUpgradeObject:    "UpgradeObject",
	OpInstallCard:      "InstallCard",
	OpWithdraw:         "Withdraw",
	OpDeposit:          "Deposit",
	OpBounty:           "Bounty",
	OpCollectEnergy:    "CollectEnergy",
	OpListCardInMarket: "ListCardInMarket",
	OpBidCard:          "BidCard",
	OpSellCard:         "SellCard",
}

func OpName(op uint64) string { return opNames[op] }

// Command is a decoded command word plus its opcode-specific payload.
// Payload words the sender omitted read as zero.
type Command struct {
	Op      uint64
	Nonce   uint64
	Payload [4]uint64
}

// CommandWord builds word0 from an opcode and nonce.
func CommandWord(op, nonce uint64) uint64 {
	return (op & 0xff) | nonce<<16
}

// DecodeCommand splits the raw params into opcode, nonce and payload.
func DecodeCommand(params []uint64) Command {
	var c Command
	if len(params) == 0 {
		return c
	}
	op := params[0] & 0xff
	if _, ok := opNames[op]; !ok {
		op = OpTick
	}
	c.Op = op
	c.Nonce = params[0] >> 16
	for i := 1; i < len(params) && i <= len(c.Payload); i++ {
		c.Payload[i-1] = params[i]
	}
	return c
}

// Encode renders the command back into wire params.
func (c Command) Encode() []uint64 {
	out := make([]uint64, 0, 1+len(c.Payload))
	out = append(out, CommandWord(c.Op, c.Nonce))
	out = append(out, c.Payload[:]...)
	return out
}

// AdminOnly reports whether the opcode requires the configured admin key.
func AdminOnly(op uint64) bool {
	return op == OpTick || op == OpDeposit
}

// PlayerID derives the 2x64-bit player identity from a public key.
func PlayerID(pkey [4]uint64) [2]uint64 {
	return [2]uint64{pkey[1], pkey[2]}
}

const ringTerminator = 0xff

// MaxRing is the ring capacity of an object.
const MaxRing = 8

// DecodeRing reads ring slots from the little-endian bytes of w, stopping at
// the first 0xff byte.
func DecodeRing(w uint64) []uint8 {
	out := make([]uint8, 0, MaxRing)
	for i := 0; i < MaxRing; i++ {
		b := uint8(w >> (8 * i))
		if b == ringTerminator {
			break
		}
		out = append(out, b)
	}
	return out
}

// EncodeRing is the inverse of DecodeRing; rings longer than MaxRing are truncated.
func EncodeRing(ring []uint8) uint64 {
	var w uint64
	for i := 0; i < MaxRing; i++ {
		b := uint64(ringTerminator)
		if i < len(ring) {
			b = uint64(ring[i])
		}
		w |= b << (8 * i)
	}
	return w
}
