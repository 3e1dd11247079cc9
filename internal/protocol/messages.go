package protocol

import (
	"fmt"
	"strconv"
)

// TX (client -> server). Words travel as decimal strings so 64-bit values
// survive JSON number handling in clients.
type TxMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	PKey            []string `json:"pkey"`
	Params          []string `json:"params"`
}

// TX_RESULT (server -> client)
type TxResultMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Seq             uint64   `json:"seq"`
	Status          uint32   `json:"status"`
	StatusName      string   `json:"status_name"`
	EventID         uint64   `json:"event_id"`
	Events          []string `json:"events,omitempty"`
	Digest          string   `json:"digest,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// EVENT (server -> subscribers), one per decoded event record.
type EventMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Seq             uint64   `json:"seq"`
	EventID         uint64   `json:"event_id"`
	Kind            uint32   `json:"kind"`
	Data            []string `json:"data"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Counter         uint64 `json:"counter"`
	BountyPool      uint64 `json:"bounty_pool"`
}

// ParseWords converts decimal (or 0x-prefixed hex) strings into words.
func ParseWords(in []string) ([]uint64, error) {
	out := make([]uint64, len(in))
	for i, s := range in {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func FormatWords(in []uint64) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strconv.FormatUint(v, 10)
	}
	return out
}

// PKey extracts the four-word public key of a TX message.
func (m TxMsg) Key() ([4]uint64, error) {
	var k [4]uint64
	if len(m.PKey) != 4 {
		return k, fmt.Errorf("pkey: want 4 words, got %d", len(m.PKey))
	}
	words, err := ParseWords(m.PKey)
	if err != nil {
		return k, fmt.Errorf("pkey: %w", err)
	}
	copy(k[:], words)
	return k, nil
}
