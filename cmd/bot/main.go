package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/player"
	"automata.ai/internal/sim/world"
)

// bot follows the market event stream and bids on other players' listings
// up to a price ceiling.
type bot struct {
	base   string
	key    [4]uint64
	pid    [2]uint64
	max    uint64
	step   uint64
	client *http.Client
	log    *zap.Logger
}

func main() {
	var (
		url   = flag.String("url", "http://127.0.0.1:8080", "server base url")
		keyS  = flag.String("key", "", "public key words a,b,c,d")
		max   = flag.Uint64("max", 500, "highest price the bot will pay")
		step  = flag.Uint64("step", 10, "outbid increment")
		debug = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if *debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	parts := strings.Split(*keyS, ",")
	words, err := protocol.ParseWords(trimAll(parts))
	if err != nil || len(words) != 4 {
		logger.Fatal("need -key with four words", zap.Error(err))
	}
	b := &bot{
		base:   strings.TrimRight(*url, "/"),
		max:    *max,
		step:   *step,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	copy(b.key[:], words)
	b.pid = protocol.PlayerID(b.key)
	b.log = logger.With(zap.Uint64("pid0", b.pid[0]), zap.Uint64("pid1", b.pid[1]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := b.run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("bot", zap.Error(err))
	}
}

func (b *bot) run(ctx context.Context) error {
	res, err := b.send(ctx, protocol.OpInstallPlayer)
	if err != nil {
		return err
	}
	if res.Status != protocol.StatusOK && res.Status != uint32(protocol.ErrPlayerAlreadyExist) {
		return fmt.Errorf("install player: %s", res.StatusName)
	}

	wsURL := "ws" + strings.TrimPrefix(b.base, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()
	b.log.Info("watching market", zap.String("url", wsURL))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeEvent {
			continue
		}
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Kind != market.EventKind {
			continue
		}
		l, err := decodeListing(ev)
		if err != nil {
			b.log.Warn("bad event", zap.Uint64("seq", ev.Seq), zap.Error(err))
			continue
		}
		price, ok := nextBid(l, b.pid, b.max, b.step)
		if !ok {
			continue
		}
		res, err := b.send(ctx, protocol.OpBidCard, l.MarketID, price)
		if err != nil {
			return err
		}
		b.log.Info("bid",
			zap.Uint64("market", l.MarketID),
			zap.Uint64("price", price),
			zap.String("status", res.StatusName),
		)
	}
}

// decodeListing rebuilds the framed event from an EVENT message.
func decodeListing(ev protocol.EventMsg) (*player.MarketCard, error) {
	body, err := protocol.ParseWords(ev.Data)
	if err != nil {
		return nil, err
	}
	framed := append([]uint64{uint64(ev.Kind)<<32 | uint64(len(body))}, body...)
	evs, err := world.DecodeEvents(framed)
	if err != nil {
		return nil, err
	}
	if len(evs) != 1 || evs[0].Listing == nil {
		return nil, fmt.Errorf("event %d: no listing", ev.EventID)
	}
	return evs[0].Listing, nil
}

// nextBid picks the price to offer on l, or false when the bot should stay
// out: its own listing, already settled, already leading, or over budget.
func nextBid(l *player.MarketCard, self [2]uint64, ceiling, step uint64) (uint64, bool) {
	if l.SettleInfo == market.Settled || l.OwnerID == self {
		return 0, false
	}
	price := step
	if l.Bid != nil {
		if l.Bid.Bidder == self {
			return 0, false
		}
		price = l.Bid.Price + step
	}
	if price > l.AskPrice {
		price = l.AskPrice
	}
	if price == 0 || price > ceiling {
		return 0, false
	}
	return price, true
}

func (b *bot) send(ctx context.Context, op uint64, payload ...uint64) (protocol.TxResultMsg, error) {
	var res protocol.TxResultMsg
	nonce, err := b.nonce(ctx)
	if err != nil {
		return res, err
	}
	params := append([]uint64{protocol.CommandWord(op, nonce)}, payload...)
	body, _ := json.Marshal(protocol.TxMsg{
		Type:            protocol.TypeTx,
		ProtocolVersion: protocol.Version,
		PKey:            protocol.FormatWords(b.key[:]),
		Params:          protocol.FormatWords(params),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/v1/tx", bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("%s: %s", protocol.OpName(op), resp.Status)
	}
	if res.Error != "" {
		return res, fmt.Errorf("%s: %s", protocol.OpName(op), res.Error)
	}
	return res, nil
}

// nonce reads the current nonce; a player not yet installed starts at zero.
func (b *bot) nonce(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/player/%d/%d", b.base, b.pid[0], b.pid[1]), nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	var p struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return 0, err
	}
	return p.Nonce, nil
}

func trimAll(in []string) []string {
	for i := range in {
		in[i] = strings.TrimSpace(in[i])
	}
	return in
}
