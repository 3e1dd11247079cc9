package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"automata.ai/internal/persistence/kvstore"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteBytes(h hashWriter, tmp *[8]byte, b []byte) {
	digestWriteU64(h, tmp, uint64(len(b)))
	h.Write(b)
}

// chainDigest folds one processed transaction into the chain head. writes
// must already be sorted.
func chainDigest(prev [32]byte, seq uint64, status uint32, writes []kvstore.Write) [32]byte {
	h := sha256.New()
	var tmp [8]byte
	h.Write(prev[:])
	digestWriteU64(h, &tmp, seq)
	digestWriteU64(h, &tmp, uint64(status))
	digestWriteU64(h, &tmp, uint64(len(writes)))
	for _, w := range writes {
		digestWriteBytes(h, &tmp, w.Key)
		digestWriteBytes(h, &tmp, w.Value)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Digest is the hex chain head after the last processed transaction.
func (w *World) Digest() string { return hex.EncodeToString(w.digest[:]) }

// Randomness derives the next transaction's four random words from the
// chain head, so a replay reproduces them.
func (w *World) Randomness() [4]uint64 {
	h := sha256.New()
	var tmp [8]byte
	h.Write(w.digest[:])
	digestWriteU64(h, &tmp, w.seq)
	sum := h.Sum(nil)
	var out [4]uint64
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(sum[i*8:])
	}
	return out
}
