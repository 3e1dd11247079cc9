// Package txmsg converts between the JSON wire messages and world
// transactions. Both the HTTP and websocket transports use it.
package txmsg

import (
	"context"
	"errors"
	"net"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/world"
)

// ErrAdminRemote rejects an admin-keyed envelope sent by a non-loopback peer.
var ErrAdminRemote = errors.New("admin key accepted from loopback peers only")

// Submit decodes a TX envelope and runs it through the world loop.
// Envelopes are unsigned, so one carrying adminKey is only accepted when
// remoteAddr is a loopback address.
func Submit(ctx context.Context, w *world.World, raw []byte, adminKey [4]uint64, remoteAddr string) (protocol.TxResultMsg, error) {
	msg, err := protocol.DecodeTx(raw)
	if err != nil {
		return protocol.TxResultMsg{}, err
	}
	key, err := msg.Key()
	if err != nil {
		return protocol.TxResultMsg{}, err
	}
	if key == adminKey && !IsLoopback(remoteAddr) {
		return protocol.TxResultMsg{}, ErrAdminRemote
	}
	params, err := protocol.ParseWords(msg.Params)
	if err != nil {
		return protocol.TxResultMsg{}, err
	}
	res, err := w.Submit(ctx, key, params)
	return Result(res, err), nil
}

// Result renders a processed transaction. An abort carries the error text
// and no sequence number.
func Result(res world.Result, err error) protocol.TxResultMsg {
	m := protocol.TxResultMsg{
		Type:            protocol.TypeTxResult,
		ProtocolVersion: protocol.Version,
	}
	if err != nil {
		m.Error = err.Error()
		return m
	}
	m.Seq = res.Seq
	m.Status = res.Status
	m.StatusName = protocol.CodeName(res.Status)
	m.EventID = res.EventID
	m.Digest = res.Digest
	if len(res.Events) > 0 {
		m.Events = protocol.FormatWords(res.Events)
	}
	return m
}

// Events renders each event record of a committed transaction.
func Events(seq uint64, evs []world.MarketEvent) []protocol.EventMsg {
	out := make([]protocol.EventMsg, 0, len(evs))
	for _, ev := range evs {
		out = append(out, protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Seq:             seq,
			EventID:         ev.ID,
			Kind:            ev.Kind,
			Data:            protocol.FormatWords(ev.Words),
		})
	}
	return out
}

// RemoteHost strips the port from a RemoteAddr.
func RemoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func IsLoopback(addr string) bool {
	ip := net.ParseIP(RemoteHost(addr))
	return ip != nil && ip.IsLoopback()
}
