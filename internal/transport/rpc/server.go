// Package rpc is the HTTP surface: transaction submission, ledger queries
// and the market read model.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"automata.ai/internal/persistence/indexdb"
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/world"
	"automata.ai/internal/transport/txmsg"
)

const (
	maxBody      = 64 * 1024
	maxTickBatch = 1000
	queryTimeout = 5 * time.Second
)

// MarketIndex is the read model behind /data.
type MarketIndex interface {
	ListMarkets(ctx context.Context, openOnly bool, limit int) ([]indexdb.Market, error)
	BidsBy(ctx context.Context, pid [2]uint64) ([]indexdb.Market, error)
}

type Config struct {
	AdminKey [4]uint64
	// RateLimit is transactions per second per remote host; zero disables it.
	RateLimit float64
	Burst     int
}

type Server struct {
	world *world.World
	index MarketIndex
	cfg   Config
	log   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewServer(w *world.World, index MarketIndex, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RateLimit))
	}
	return &Server{
		world:    w,
		index:    index,
		cfg:      cfg,
		log:      logger,
		limiters: map[string]*rate.Limiter{},
	}
}

// Routes registers every endpoint on mux. events may be nil.
func (s *Server) Routes(mux *http.ServeMux, events http.Handler) {
	mux.HandleFunc("POST /v1/tx", s.limited(s.handleTx))
	mux.HandleFunc("POST /v1/tick", s.handleTick)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("GET /v1/player/{pid0}/{pid1}", s.handlePlayer)
	mux.HandleFunc("GET /data/markets", s.handleMarkets)
	mux.HandleFunc("GET /data/bid/{pid0}/{pid1}", s.handleBids)
	if events != nil {
		mux.Handle("GET /v1/events", events)
	}
}

// Handler wraps h with request ids and access logging.
func (s *Server) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		rw.Header().Set("X-Request-Id", id)
		start := time.Now()
		sw := &statusWriter{ResponseWriter: rw, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		s.log.Debug("http",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (s *Server) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.Burst)
		s.limiters[host] = l
	}
	return l
}

func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	if s.cfg.RateLimit <= 0 {
		return h
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.limiter(txmsg.RemoteHost(r.RemoteAddr)).Allow() {
			writeError(rw, http.StatusTooManyRequests, "rate limited")
			return
		}
		h(rw, r)
	}
}

func (s *Server) handleTx(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBody))
	if err != nil {
		writeError(rw, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	out, err := txmsg.Submit(r.Context(), s.world, raw, s.cfg.AdminKey, r.RemoteAddr)
	if errors.Is(err, txmsg.ErrAdminRemote) {
		writeError(rw, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	if out.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(rw, status, out)
}

func (s *Server) handleTick(rw http.ResponseWriter, r *http.Request) {
	if !txmsg.IsLoopback(r.RemoteAddr) {
		writeError(rw, http.StatusForbidden, "forbidden")
		return
	}
	n := 1
	if v := r.URL.Query().Get("n"); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil || c < 1 || c > maxTickBatch {
			writeError(rw, http.StatusBadRequest, "n must be 1.."+strconv.Itoa(maxTickBatch))
			return
		}
		n = c
	}
	params := []uint64{protocol.CommandWord(protocol.OpTick, 0)}
	var last protocol.TxResultMsg
	for i := 0; i < n; i++ {
		res, err := s.world.Submit(r.Context(), s.cfg.AdminKey, params)
		last = txmsg.Result(res, err)
		if err != nil {
			writeJSON(rw, http.StatusUnprocessableEntity, last)
			return
		}
	}
	writeJSON(rw, http.StatusOK, last)
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	var st world.State
	if err := s.world.Query(ctx, func(w *world.World) { st = w.State() }); err != nil {
		writeError(rw, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, st)
}

func (s *Server) handlePlayer(rw http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	var (
		b    []byte
		qerr error
	)
	if err := s.world.Query(ctx, func(w *world.World) { b, qerr = w.PlayerJSON(pid) }); err != nil {
		writeError(rw, http.StatusServiceUnavailable, err.Error())
		return
	}
	if qerr != nil {
		s.log.Error("player query", zap.Uint64s("pid", pid[:]), zap.Error(qerr))
		writeError(rw, http.StatusInternalServerError, "player query failed")
		return
	}
	if b == nil {
		writeError(rw, http.StatusNotFound, protocol.CodeName(uint32(protocol.ErrPlayerNotExist)))
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(b)
}

func (s *Server) handleMarkets(rw http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(rw, http.StatusNotFound, "market index disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	open := r.URL.Query().Get("open") == "1"
	ms, err := s.index.ListMarkets(r.Context(), open, limit)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, ms)
}

func (s *Server) handleBids(rw http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(rw, http.StatusNotFound, "market index disabled")
		return
	}
	pid, ok := pathPID(rw, r)
	if !ok {
		return
	}
	ms, err := s.index.BidsBy(r.Context(), pid)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, ms)
}

func pathPID(rw http.ResponseWriter, r *http.Request) ([2]uint64, bool) {
	words, err := protocol.ParseWords([]string{r.PathValue("pid0"), r.PathValue("pid1")})
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return [2]uint64{}, false
	}
	return [2]uint64{words[0], words[1]}, true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
