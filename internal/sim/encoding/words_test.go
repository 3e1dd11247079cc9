package encoding

import (
	"errors"
	"testing"
)

func TestReader_ShortDataIsSticky(t *testing.T) {
	r := NewReader([]uint64{7})
	if got := r.U64(); got != 7 {
		t.Fatalf("first word: got %d", got)
	}
	if got := r.U64(); got != 0 {
		t.Fatalf("short read should yield 0, got %d", got)
	}
	if !errors.Is(r.Err(), ErrShortData) {
		t.Fatalf("expected ErrShortData, got %v", r.Err())
	}
}

func TestReader_CountRejectsOversizedSections(t *testing.T) {
	r := NewReader([]uint64{5, 1, 2})
	if n := r.Count(3); n != 0 {
		t.Fatalf("expected rejected count, got %d", n)
	}
	if !errors.Is(r.Err(), ErrShortData) {
		t.Fatalf("expected ErrShortData, got %v", r.Err())
	}
}

func TestPackInt8s_SignExtendsEachByte(t *testing.T) {
	v := [8]int8{-2, -2, 4, 0, 0, 0, 0, 127}
	w := PackInt8s(v)
	if w&0xff != 0xfe {
		t.Fatalf("low byte should hold -2 as 0xfe, got %#x", w&0xff)
	}
	if got := UnpackInt8s(w); got != v {
		t.Fatalf("unpack mismatch: %v vs %v", got, v)
	}
}

func TestBytesToWords_RejectsPartialWords(t *testing.T) {
	if _, err := BytesToWords(make([]byte, 9)); err == nil {
		t.Fatalf("expected error for 9 bytes")
	}
	words, err := BytesToWords(WordsToBytes([]uint64{1, 1 << 63}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if words[0] != 1 || words[1] != 1<<63 {
		t.Fatalf("unexpected words %v", words)
	}
}
