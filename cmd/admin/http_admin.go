package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"automata.ai/internal/protocol"
)

var client = &http.Client{Timeout: 10 * time.Second}

func baseURL(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(do(http.MethodGet, baseURL(*url)+"/v1/state", nil))
}

func tickCmd(args []string) {
	fs := flag.NewFlagSet("tick", flag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8080", "server base url")
	n := fs.Int("n", 1, "ticks to run")
	_ = fs.Parse(args)
	os.Exit(do(http.MethodPost, baseURL(*url)+"/v1/tick?n="+strconv.Itoa(*n), nil))
}

// depositCmd credits a player from the admin key. The admin nonce is read
// from the server unless given. The server only accepts the admin key from
// loopback peers, so this runs on the server host.
func depositCmd(args []string) {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8080", "server base url")
	admin := fs.String("admin", "0,0,0,0", "admin public key words")
	pid := fs.String("pid", "", "target player id words: pid0,pid1")
	amount := fs.Uint64("amount", 0, "amount to deposit")
	nonce := fs.Int64("nonce", -1, "admin nonce (default: fetch)")
	_ = fs.Parse(args)

	key, err := parseKey(*admin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		os.Exit(2)
	}
	target, err := parseWordList(*pid, 2)
	if err != nil || *amount == 0 {
		fmt.Fprintln(os.Stderr, "need -pid pid0,pid1 and -amount > 0")
		os.Exit(2)
	}
	n := uint64(*nonce)
	if *nonce < 0 {
		if n, err = fetchNonce(baseURL(*url), protocol.PlayerID(key)); err != nil {
			fmt.Fprintln(os.Stderr, "nonce:", err)
			os.Exit(1)
		}
	}
	msg := protocol.TxMsg{
		Type:            protocol.TypeTx,
		ProtocolVersion: protocol.Version,
		PKey:            protocol.FormatWords(key[:]),
		Params:          protocol.FormatWords([]uint64{protocol.CommandWord(protocol.OpDeposit, n), target[0], target[1], 0, *amount}),
	}
	body, _ := json.Marshal(msg)
	os.Exit(do(http.MethodPost, baseURL(*url)+"/v1/tx", body))
}

func fetchNonce(base string, pid [2]uint64) (uint64, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/player/%d/%d", base, pid[0], pid[1]))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("player %d,%d: %s", pid[0], pid[1], resp.Status)
	}
	var p struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return 0, err
	}
	return p.Nonce, nil
}

// do sends the request, prints the body and returns a process exit code.
func do(method, u string, body []byte) int {
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 2
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
