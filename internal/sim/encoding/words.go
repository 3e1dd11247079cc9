package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortData is returned when a record ends before all of its fields were read.
var ErrShortData = errors.New("encoding: short data")

// Writer appends u64 words. Records are fixed-order word sequences with
// variable-length sections prefixed by an explicit count.
type Writer struct {
	words []uint64
}

func NewWriter(capacity int) *Writer {
	return &Writer{words: make([]uint64, 0, capacity)}
}

func (w *Writer) U64(v uint64)    { w.words = append(w.words, v) }
func (w *Writer) I64(v int64)     { w.words = append(w.words, uint64(v)) }
func (w *Writer) Len() int        { return len(w.words) }
func (w *Writer) Words() []uint64 { return w.words }

// Bytes returns the words as little-endian bytes.
func (w *Writer) Bytes() []byte { return WordsToBytes(w.words) }

// Reader consumes u64 words in order.
type Reader struct {
	words []uint64
	pos   int
	err   error
}

func NewReader(words []uint64) *Reader {
	return &Reader{words: words}
}

// NewReaderBytes decodes little-endian bytes into words before reading.
func NewReaderBytes(b []byte) (*Reader, error) {
	words, err := BytesToWords(b)
	if err != nil {
		return nil, err
	}
	return NewReader(words), nil
}

// U64 returns the next word. After the first short read every call returns 0
// and Err reports ErrShortData.
func (r *Reader) U64() uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.words) {
		r.err = fmt.Errorf("%w: want word %d of %d", ErrShortData, r.pos+1, len(r.words))
		return 0
	}
	v := r.words[r.pos]
	r.pos++
	return v
}

func (r *Reader) I64() int64 { return int64(r.U64()) }

// Count reads a section length and rejects values larger than the remaining
// words divided by the per-item width.
func (r *Reader) Count(itemWords int) int {
	n := r.U64()
	if r.err != nil {
		return 0
	}
	if itemWords < 1 {
		itemWords = 1
	}
	if n > uint64(r.Remaining()/itemWords) {
		r.err = fmt.Errorf("%w: count %d exceeds remaining %d words", ErrShortData, n, r.Remaining())
		return 0
	}
	return int(n)
}

func (r *Reader) Remaining() int { return len(r.words) - r.pos }
func (r *Reader) Err() error     { return r.err }

func WordsToBytes(words []uint64) []byte {
	out := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(out[8*i:], w)
	}
	return out
}

func BytesToWords(b []byte) ([]uint64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("encoding: %d bytes is not a whole number of words", len(b))
	}
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return out, nil
}

// Key is a four-word storage key.
type Key [4]uint64

func (k Key) Bytes() []byte { return WordsToBytes(k[:]) }

// PackBytes packs eight bytes little-endian into one word.
func PackBytes(b [8]byte) uint64 { return binary.LittleEndian.Uint64(b[:]) }

func UnpackBytes(w uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], w)
	return b
}

// PackInt8s packs eight signed bytes (two's complement) into one word.
func PackInt8s(v [8]int8) uint64 {
	var b [8]byte
	for i, x := range v {
		b[i] = byte(x)
	}
	return PackBytes(b)
}

func UnpackInt8s(w uint64) [8]int8 {
	b := UnpackBytes(w)
	var v [8]int8
	for i, x := range b {
		v[i] = int8(x)
	}
	return v
}
