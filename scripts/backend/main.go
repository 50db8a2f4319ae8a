// Backend is a test HTTP server for exercising the traffic engine. It
// answers every path with a JSON payload identifying the server, serves a
// health-probe endpoint, and can be flipped into a failing state at
// runtime to rehearse health transitions and circuit breaking.
//
// Usage:
//
//	go run ./scripts/backend -port 8081
//	go run ./scripts/backend -port 8082 -health-path /status -delay 50ms
//
// Failure injection:
//
//	curl -X POST localhost:8081/admin/fail     # probes and requests 503
//	curl -X POST localhost:8081/admin/recover  # back to healthy
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	healthPath := flag.String("health-path", "/healthcheck", "path answered with the health status")
	delay := flag.Duration("delay", 0, "artificial latency added to every response")
	flag.Parse()

	addr := fmt.Sprintf(":%d", *port)

	var failing atomic.Bool

	mux := http.NewServeMux()

	mux.HandleFunc("/admin/fail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		failing.Store(true)
		log.Printf("failure mode armed")
		w.Write([]byte("failing\n"))
	})

	mux.HandleFunc("/admin/recover", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		failing.Store(false)
		log.Printf("failure mode cleared")
		w.Write([]byte("healthy\n"))
	})

	mux.HandleFunc(*healthPath, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "failing", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	// every other path echoes which server answered, so load tests can
	// verify the traffic distribution from response bodies
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if *delay > 0 {
			time.Sleep(*delay)
		}

		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		if failing.Load() {
			http.Error(w, "failing", http.StatusServiceUnavailable)
			return
		}

		resp := map[string]any{
			"server": addr,
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	log.Printf("starting backend on %s (health probe at %s)", addr, *healthPath)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
