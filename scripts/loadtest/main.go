// Loadtest is a concurrent HTTP load generator for the traffic engine.
// It measures throughput, latency percentiles and per-backend
// distribution, reading the answering backend from the X-Backend-Server
// response header.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:8080/v1 -concurrency 10 -requests 1000
//	go run ./scripts/loadtest -url http://localhost:8080/app -host api.example.com -requests 5000 -csv results.csv -out summary.json
//
// Features:
//   - Concurrent workers for high throughput testing
//   - Host header override for host-namespace routes
//   - Per-backend latency and distribution statistics
//   - CSV output with per-request details
//   - JSON summary with percentiles (p50, p90, p95, p99)
//   - Fake IP rotation via X-Forwarded-For for ip-hash strategy testing
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type backendStats struct {
	Count     int32
	Success   int32
	Failure   int32
	Latencies []time.Duration
}

type latencySummary struct {
	Samples int
	Min     time.Duration
	Avg     time.Duration
	Max     time.Duration
	P50     time.Duration
	P90     time.Duration
	P95     time.Duration
	P99     time.Duration
}

func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	pick := func(p float64) time.Duration {
		return sorted[int(float64(len(sorted)-1)*p)]
	}

	return latencySummary{
		Samples: len(sorted),
		Min:     sorted[0],
		Avg:     sum / time.Duration(len(sorted)),
		Max:     sorted[len(sorted)-1],
		P50:     pick(0.50),
		P90:     pick(0.90),
		P95:     pick(0.95),
		P99:     pick(0.99),
	}
}

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/v1", "Target URL")
		host        = flag.String("host", "", "Host header override for host-namespace routes")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		method      = flag.String("method", "GET", "HTTP method")
		body        = flag.String("body", "", "Request body")
		contentType = flag.String("content-type", "application/json", "Content-Type header")
		timeoutSec  = flag.Int("timeout", 10, "Per-request timeout in seconds")
		fakeIPs     = flag.Int("fake-ips", 50, "Rotate X-Forwarded-For over this many source IPs")
	)

	outJSON := flag.String("out", "", "Write JSON summary to this file (optional)")
	outCSV := flag.String("csv", "", "Write per-request CSV to this file (optional)")
	verbose := flag.Bool("v", false, "Verbose per-request logging to stdout")
	flag.Parse()

	if *fakeIPs <= 0 {
		*fakeIPs = 1
	}

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total, success, failure int32

	stats := make(map[string]*backendStats)
	var statsMu sync.Mutex

	var allLatencies []time.Duration
	var latMu sync.Mutex

	statusCodes := make(map[int]int32)
	var statusMu sync.Mutex

	var csvFile *os.File
	var csvWriter *csv.Writer
	var csvMu sync.Mutex
	if *outCSV != "" {
		f, err := os.Create(*outCSV)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create csv file: %v\n", err)
			os.Exit(1)
		}
		csvFile = f
		csvWriter = csv.NewWriter(f)
		csvWriter.Write([]string{"idx", "timestamp", "backend", "status", "duration_ms"})
	}

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				atomic.AddInt32(&total, 1)
				start := time.Now()

				req, err := http.NewRequest(*method, *url, bytes.NewBufferString(*body))
				if err != nil {
					atomic.AddInt32(&failure, 1)
					continue
				}
				req.Header.Set("Content-Type", *contentType)
				if *host != "" {
					req.Host = *host
				}

				// Rotate fake source IPs so ip-hash routes spread out
				fakeIP := fmt.Sprintf("192.168.1.%d", (idx%*fakeIPs)+1)
				req.Header.Set("X-Forwarded-For", fakeIP)

				resp, err := client.Do(req)
				dur := time.Since(start)

				latMu.Lock()
				allLatencies = append(allLatencies, dur)
				latMu.Unlock()

				if err != nil {
					atomic.AddInt32(&failure, 1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				statusMu.Lock()
				statusCodes[resp.StatusCode]++
				statusMu.Unlock()

				ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
				if ok {
					atomic.AddInt32(&success, 1)
				} else {
					atomic.AddInt32(&failure, 1)
				}

				backend := resp.Header.Get("X-Backend-Server")
				if backend == "" {
					backend = "(unknown)"
				}

				statsMu.Lock()
				bs, found := stats[backend]
				if !found {
					bs = &backendStats{}
					stats[backend] = bs
				}
				bs.Count++
				if ok {
					bs.Success++
				} else {
					bs.Failure++
				}
				bs.Latencies = append(bs.Latencies, dur)
				statsMu.Unlock()

				if csvWriter != nil {
					csvMu.Lock()
					csvWriter.Write([]string{
						fmt.Sprintf("%d", idx),
						time.Now().Format(time.RFC3339Nano),
						backend,
						fmt.Sprintf("%d", resp.StatusCode),
						fmt.Sprintf("%.3f", float64(dur.Microseconds())/1000.0),
					})
					csvMu.Unlock()
				}

				if *verbose {
					fmt.Printf("[%d] idx=%d backend=%s status=%d dur=%v\n", workerID, idx, backend, resp.StatusCode, dur)
				}

				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)

	if csvWriter != nil {
		csvWriter.Flush()
		csvFile.Close()
	}

	throughput := float64(total) / totalDuration.Seconds()

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *url)
	if *host != "" {
		fmt.Printf("Host header: %s\n", *host)
	}
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Total sent: %d  Success: %d  Failure: %d\n", total, success, failure)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, throughput)

	fmt.Println("\nStatus codes:")
	var scKeys []int
	for k := range statusCodes {
		scKeys = append(scKeys, k)
	}
	sort.Ints(scKeys)
	for _, k := range scKeys {
		fmt.Printf("  %d -> %d\n", k, statusCodes[k])
	}

	fmt.Println("\nBackend distribution & stats:")
	var backendKeys []string
	for k := range stats {
		backendKeys = append(backendKeys, k)
	}
	sort.Strings(backendKeys)
	for _, k := range backendKeys {
		bs := stats[k]
		fmt.Printf("  %s -> total=%d success=%d failure=%d\n", k, bs.Count, bs.Success, bs.Failure)

		if sum := summarize(bs.Latencies); sum.Samples > 0 {
			fmt.Printf("    latencies: samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
				sum.Samples, sum.Min, sum.Avg, sum.Max, sum.P50, sum.P90, sum.P95, sum.P99)
		}
	}

	if sum := summarize(allLatencies); sum.Samples > 0 {
		fmt.Println("\nOverall latencies:")
		fmt.Printf("  samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
			sum.Samples, sum.Min, sum.Avg, sum.Max, sum.P50, sum.P90, sum.P95, sum.P99)
	}

	if *outJSON != "" {
		type backendSummary struct {
			Total   int32   `json:"total"`
			Success int32   `json:"success"`
			Failure int32   `json:"failure"`
			P50     float64 `json:"p50_ms"`
			P90     float64 `json:"p90_ms"`
			P95     float64 `json:"p95_ms"`
			P99     float64 `json:"p99_ms"`
		}

		ms := func(d time.Duration) float64 { return float64(d.Milliseconds()) }

		bsum := map[string]backendSummary{}
		for k, v := range stats {
			sum := summarize(v.Latencies)
			bsum[k] = backendSummary{
				Total:   v.Count,
				Success: v.Success,
				Failure: v.Failure,
				P50:     ms(sum.P50),
				P90:     ms(sum.P90),
				P95:     ms(sum.P95),
				P99:     ms(sum.P99),
			}
		}

		report := map[string]interface{}{
			"target":         *url,
			"requests":       *requests,
			"concurrency":    *concurrency,
			"total_sent":     total,
			"success":        success,
			"failure":        failure,
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_rps": throughput,
			"backends":       bsum,
		}

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failure > 0 {
		os.Exit(2)
	}
}
