package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	poolSize    int
)

// Metrics
var (
	totalRequests atomic.Uint64
	persisted201  atomic.Uint64
	duplicate200  atomic.Uint64
	rejected400   atomic.Uint64
	failOther     atomic.Uint64
	seq           atomic.Uint64
)

var gateways = []string{"Vietcombank", "MBBank", "Techcombank", "ACB", "VPBank"}

var contents = []string{"Thanh toan Shopee", "GRAB ride", "Highlands Coffee", "luong thang", "chuyen tien"}

func main() {
	rootCmd := &cobra.Command{
		Use:          "benchmark",
		Short:        "Replay SePay webhooks against a running API and count outcomes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workload != "unique" && workload != "replay" {
				return fmt.Errorf("unknown workload %q (want unique or replay)", workload)
			}
			if poolSize <= 0 || concurrency <= 0 {
				return fmt.Errorf("--pool and --workers must be positive")
			}
			run()
			return nil
		},
	}
	rootCmd.Flags().StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	rootCmd.Flags().IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	rootCmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	rootCmd.Flags().StringVar(&workload, "workload", "unique", "Workload type: unique | replay")
	rootCmd.Flags().IntVar(&poolSize, "pool", 50, "Distinct payloads cycled by the replay workload")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() {
	logrus.WithFields(logrus.Fields{
		"workload": workload,
		"workers":  concurrency,
		"duration": duration,
	}).Info("Starting Benchmark")

	// Replayed payloads carry a fixed date so resubmissions hit the natural key.
	replayBase := time.Now().Truncate(time.Second)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, replayBase)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start, replayBase time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 35 * time.Second}

	for time.Since(start) < duration {
		req, err := newWebhookRequest(targetURL, generatePayload(replayBase))
		if err != nil {
			logrus.WithError(err).Debug("Could not build request")
			failOther.Add(1)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			failOther.Add(1)
			continue
		}

		totalRequests.Add(1)
		switch resp.StatusCode {
		case http.StatusCreated:
			persisted201.Add(1)
		case http.StatusOK:
			duplicate200.Add(1)
		case http.StatusBadRequest:
			rejected400.Add(1)
		default:
			failOther.Add(1)
		}
		resp.Body.Close()
	}
}

func newWebhookRequest(baseURL string, payload map[string]interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhook/sepay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func generatePayload(replayBase time.Time) map[string]interface{} {
	var n int
	var date time.Time
	if workload == "replay" {
		// Replay: a bounded pool of payloads, so most submissions are duplicates.
		n = rand.Intn(poolSize)
		date = replayBase.Add(time.Duration(n) * time.Second)
	} else {
		n = int(seq.Add(1))
		date = time.Now()
	}

	direction := "out"
	if n%4 == 0 {
		direction = "in"
	}
	return map[string]interface{}{
		"gateway":         gateways[n%len(gateways)],
		"transactionDate": date.Format("2006-01-02 15:04:05"),
		"accountNumber":   fmt.Sprintf("%010d", n%7),
		"content":         fmt.Sprintf("%s %d", contents[n%len(contents)], n),
		"transferType":    direction,
		"transferAmount":  int64(1000 * (n%500 + 1)),
	}
}

func printResults(d time.Duration) {
	total := totalRequests.Load()
	created := persisted201.Load()
	dup := duplicate200.Load()
	rejected := rejected400.Load()
	fErr := failOther.Load()

	tps := float64(total) / d.Seconds()
	var dupRate float64
	if total > 0 {
		dupRate = float64(dup) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"persisted":          created,
		"skipped_duplicate":  dup,
		"duplicate_rate_pct": dupRate,
		"rejected":           rejected,
		"errors":             fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		logrus.WithError(err).Warn("Could not write results file")
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
