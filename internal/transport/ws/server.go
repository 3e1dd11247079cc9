// Package ws streams transaction results and market events to websocket
// subscribers, and accepts TX messages on the same connection.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/world"
	"automata.ai/internal/transport/txmsg"
)

const (
	outQueue     = 256
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
)

type client struct {
	id  string
	out chan []byte
}

// Server is a broadcast hub. It implements world.Observer; OnTx runs on
// the world loop and never blocks.
type Server struct {
	world *world.World
	admin [4]uint64
	log   *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	dropped atomic.Uint64
}

// NewServer builds a hub over w. TX envelopes carrying adminKey are only
// accepted from loopback peers.
func NewServer(w *world.World, adminKey [4]uint64, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		admin: adminKey,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]*client{},
	}
}

// Clients is the number of connected subscribers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) OnTx(entry world.TxLogEntry, res world.Result) {
	if s.Clients() == 0 {
		return
	}
	msgs := [][]byte{mustJSON(txmsg.Result(res, nil))}
	evs, err := world.DecodeEvents(res.Events)
	if err != nil {
		s.log.Error("decode events", zap.Uint64("seq", res.Seq), zap.Error(err))
	}
	for _, m := range txmsg.Events(res.Seq, evs) {
		msgs = append(msgs, mustJSON(m))
	}
	s.broadcast(msgs)
}

func (s *Server) broadcast(msgs [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		for _, b := range msgs {
			select {
			case c.out <- b:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

func (s *Server) register() *client {
	c := &client{id: uuid.NewString(), out: make(chan []byte, outQueue)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	return c
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.register()
		defer s.unregister(c)
		log := s.log.With(zap.String("client", c.id))
		log.Debug("subscriber connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		hello := protocol.StateMsg{Type: protocol.TypeState, ProtocolVersion: protocol.Version}
		_ = s.world.Query(ctx, func(w *world.World) {
			st := w.State()
			hello.Counter, hello.BountyPool = st.Counter, st.BountyPool
		})
		c.out <- mustJSON(hello)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeTx {
				continue
			}
			// The reply goes to this client only; the broadcast of the same
			// result reaches every subscriber.
			out, err := txmsg.Submit(ctx, s.world, msg, s.admin, r.RemoteAddr)
			if err != nil {
				out = protocol.TxResultMsg{Type: protocol.TypeTxResult, ProtocolVersion: protocol.Version, Error: err.Error()}
			}
			select {
			case c.out <- mustJSON(out):
			case <-ctx.Done():
			}
		}
		log.Debug("subscriber disconnected")
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
