package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	baseURL      = "http://127.0.0.1:18090"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numOwners    = 20
	numPayments  = 200
)

var keywords = []string{"breach", "leak", "password", "database", "exploit"}

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

var monitorIDs struct {
	mu  sync.Mutex
	ids []string
}

func addMonitorID(id string) {
	monitorIDs.mu.Lock()
	defer monitorIDs.mu.Unlock()
	monitorIDs.ids = append(monitorIDs.ids, id)
}

func randomMonitorID(rng *rand.Rand) string {
	monitorIDs.mu.Lock()
	defer monitorIDs.mu.Unlock()
	if len(monitorIDs.ids) == 0 {
		return "mon_missing"
	}
	return monitorIDs.ids[rng.Intn(len(monitorIDs.ids))]
}

func main() {
	fmt.Println("=== kwatch Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s\n", numWorkers, testDuration)
	fmt.Printf("Owners: %d | Payments: %d\n\n", numOwners, numPayments)

	// Wait for server
	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	// Phase 1: Seed monitors and payments
	fmt.Println("\n--- Phase 1: Seeding (POST /monitors, POST /payments/confirmed) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		if rng.Float64() < 0.7 {
			return doCreateMonitor(rng)
		}
		return doConfirmPayment(rng)
	})

	// Phase 2: Mixed read/write load
	fmt.Println("\n--- Phase 2: Mixed load (30% POST, 70% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.20:
			return doCreateMonitor(rng)
		case r < 0.30:
			return doConfirmPayment(rng)
		case r < 0.55:
			return doListMonitors(rng)
		case r < 0.80:
			return doGetResults(rng)
		default:
			return doGetAllocations(rng)
		}
	})

	// Phase 3: Read-heavy load
	fmt.Println("\n--- Phase 3: Read-heavy load (5% POST, 95% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.05:
			return doCreateMonitor(rng)
		case r < 0.40:
			return doListMonitors(rng)
		case r < 0.75:
			return doGetResults(rng)
		default:
			return doGetAllocations(rng)
		}
	})
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-28s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + repeat("-", 94))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-28s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + repeat("-", 94))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func doCreateMonitor(rng *rand.Rand) result {
	body := map[string]interface{}{
		"owner_id":            fmt.Sprintf("usr_%d", rng.Intn(numOwners)),
		"url":                 fmt.Sprintf("https://example.com/page/%d", rng.Intn(1000)),
		"keyword":             keywords[rng.Intn(len(keywords))],
		"check_interval_days": rng.Intn(7) + 1,
		"alert_channels":      []string{"in_app"},
	}
	data, _ := json.Marshal(body)
	start := time.Now()
	resp, err := httpClient.Post(baseURL+"/monitors", "application/json", bytes.NewReader(data))
	lat := time.Since(start)
	if err != nil {
		return result{"POST /monitors", 0, lat, true}
	}
	defer resp.Body.Close()
	if resp.StatusCode == 201 {
		var created struct {
			ID string `json:"id"`
		}
		if json.NewDecoder(resp.Body).Decode(&created) == nil && created.ID != "" {
			addMonitorID(created.ID)
		}
	}
	io.Copy(io.Discard, resp.Body)
	return result{"POST /monitors", resp.StatusCode, lat, resp.StatusCode != 201}
}

func doConfirmPayment(rng *rand.Rand) result {
	body := map[string]interface{}{
		"payment_id":   fmt.Sprintf("pay_%d", rng.Intn(numPayments)),
		"amount_cents": rng.Int63n(100000) + 1,
	}
	data, _ := json.Marshal(body)
	start := time.Now()
	resp, err := httpClient.Post(baseURL+"/payments/confirmed", "application/json", bytes.NewReader(data))
	lat := time.Since(start)
	if err != nil {
		return result{"POST /payments/confirmed", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{"POST /payments/confirmed", resp.StatusCode, lat, resp.StatusCode != 201}
}

func doListMonitors(rng *rand.Rand) result {
	url := fmt.Sprintf("%s/monitors?owner=usr_%d", baseURL, rng.Intn(numOwners))
	start := time.Now()
	resp, err := httpClient.Get(url)
	lat := time.Since(start)
	if err != nil {
		return result{"GET /monitors", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{"GET /monitors", resp.StatusCode, lat, resp.StatusCode != 200}
}

func doGetResults(rng *rand.Rand) result {
	url := fmt.Sprintf("%s/results?monitor=%s", baseURL, randomMonitorID(rng))
	start := time.Now()
	resp, err := httpClient.Get(url)
	lat := time.Since(start)
	if err != nil {
		return result{"GET /results", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{"GET /results", resp.StatusCode, lat, resp.StatusCode != 200}
}

func doGetAllocations(rng *rand.Rand) result {
	url := fmt.Sprintf("%s/allocations?payment=pay_%d", baseURL, rng.Intn(numPayments))
	start := time.Now()
	resp, err := httpClient.Get(url)
	lat := time.Since(start)
	if err != nil {
		return result{"GET /allocations", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{"GET /allocations", resp.StatusCode, lat, resp.StatusCode != 200}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func avgDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}

func percentile(ds []time.Duration, p float64) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	idx := int(float64(len(ds)-1) * p)
	return ds[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}
