// Upstream is a configurable test HTTP server used for gateway testing.
// It serves /orders plus a /health endpoint, and can be made flaky or slow
// at runtime so circuit breaker transitions can be provoked on demand.
//
// Usage:
//
//	go run ./scripts/upstream -port 9001 -fail-rate 0.3 -latency 50ms
//
// POST /toggle flips the server between healthy and failing without a
// restart, which is handy while watching the gateway's /metrics output.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"
)

// newUUID generates a random v4 UUID per RFC 4122.
func newUUID() string {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return ""
	}
	// set version (4) and variant bits per RFC 4122
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	// format as hex groups
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		hex.EncodeToString(b[0:4]),
		hex.EncodeToString(b[4:6]),
		hex.EncodeToString(b[6:8]),
		hex.EncodeToString(b[8:10]),
		hex.EncodeToString(b[10:16]),
	)
}

// Order represents an order entity with unique identifier.
type Order struct {
	UUID   string `json:"uuid"`
	Item   string `json:"item"`
	Amount int    `json:"amount"`
}

// CreateOrderRequest is the request payload for creating an order.
type CreateOrderRequest struct {
	Item   string `json:"item"`
	Amount int    `json:"amount"`
}

func shouldFail(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return false
	}
	return float64(n.Int64()) < rate*1000
}

func main() {
	port := flag.Int("port", 9001, "port to listen on")
	failRate := flag.Float64("fail-rate", 0, "fraction of /orders requests answered with 500")
	latency := flag.Duration("latency", 0, "artificial delay before answering /orders")
	flag.Parse()

	// forced makes every request fail regardless of fail-rate
	var forced atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		if *latency > 0 {
			time.Sleep(*latency)
		}

		if forced.Load() || shouldFail(*failRate) {
			log.Printf("request: method=%s path=%s from=%s -> injected failure", r.Method, r.URL.Path, r.RemoteAddr)
			http.Error(w, "simulated upstream failure", http.StatusInternalServerError)
			return
		}

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		log.Printf("request: method=%s path=%s from=%s body=%s", r.Method, r.URL.Path, r.RemoteAddr, string(body))
		var req CreateOrderRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
		}
		if req.Item == "" {
			req.Item = "default-item"
		}
		order := Order{
			UUID:   newUUID(),
			Item:   req.Item,
			Amount: req.Amount,
		}

		resp := map[string]any{"order": order}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write(b)
	})

	mux.HandleFunc("/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		failing := !forced.Load()
		forced.Store(failing)
		log.Printf("toggled: failing=%v", failing)
		fmt.Fprintf(w, "failing=%v\n", failing)
	})

	// simple health endpoint used by the gateway health checker; it reports
	// unhealthy while failures are forced so recovery can be observed
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if forced.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("failing"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting upstream on %s (fail-rate=%.2f latency=%s)", addr, *failRate, *latency)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
