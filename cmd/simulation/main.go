package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var (
	symbols    = []string{"BTC", "ETH"}
	orderTypes = []string{"buy", "sell"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the exchange API
type simulationClient struct {
	baseURL string
	client  *http.Client
	mu      sync.Mutex
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: map[string]*routeStats{
			"place":    {name: "Place Order"},
			"balances": {name: "Get Balances"},
			"orders":   {name: "Get Orders"},
		},
	}
}

func (sc *simulationClient) record(route string, d time.Duration, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	stats := sc.stats[route]
	stats.addDuration(d)
	if failed {
		stats.failures++
	}
}

// placeOrder submits a randomized valid order for the given user
func (sc *simulationClient) placeOrder(userID int) error {
	// Price stays inside the accepted band, quantity inside a small range
	price := 1.2 + rand.Float64()*7.9
	quantity := 0.1 + rand.Float64()*4.9

	body, err := json.Marshal(map[string]interface{}{
		"userId":          userID,
		"order_type":      orderTypes[rand.Intn(len(orderTypes))],
		"currency_symbol": symbols[rand.Intn(len(symbols))],
		"price":           math.Round(price*1e6) / 1e6,
		"quantity":        math.Round(quantity*1e8) / 1e8,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := sc.client.Post(sc.baseURL+"/api/orders", "application/json", bytes.NewReader(body))
	elapsed := time.Since(start)
	if err != nil {
		sc.record("place", elapsed, true)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 400s are expected here: sells against drained balances are part of
	// the scenario, only transport and 5xx responses count as failures.
	sc.record("place", elapsed, resp.StatusCode >= 500)
	return nil
}

func (sc *simulationClient) getBalances(userID int) error {
	start := time.Now()
	resp, err := sc.client.Get(fmt.Sprintf("%s/api/balances/%d", sc.baseURL, userID))
	elapsed := time.Since(start)
	if err != nil {
		sc.record("balances", elapsed, true)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	sc.record("balances", elapsed, resp.StatusCode >= 500)
	return nil
}

func (sc *simulationClient) getOrders(userID int) error {
	start := time.Now()
	resp, err := sc.client.Get(fmt.Sprintf("%s/api/orders?userId=%d", sc.baseURL, userID))
	elapsed := time.Since(start)
	if err != nil {
		sc.record("orders", elapsed, true)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	sc.record("orders", elapsed, resp.StatusCode >= 500)
	return nil
}

func (sc *simulationClient) printSummary() {
	for _, key := range []string{"place", "balances", "orders"} {
		stats := sc.stats[key]
		min, max, mean, median, p95, p99 := stats.calculate()
		log.Info().
			Str("route", stats.name).
			Int("calls", stats.totalCalls).
			Int("failures", stats.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Dur("p95", p95).
			Dur("p99", p99).
			Msg("route summary")
	}
}

func main() {
	sc := newSimulationClient()

	totalOrders := minOrders + rand.Intn(maxOrders-minOrders+1)
	log.Info().Int("orders", totalOrders).Int("workers", numWorkers).Msg("starting simulation")

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				if err := sc.placeOrder(userID); err != nil {
					log.Error().Err(err).Int("user_id", userID).Msg("place order failed")
				}
				if err := sc.getBalances(userID); err != nil {
					log.Error().Err(err).Int("user_id", userID).Msg("get balances failed")
				}
				if err := sc.getOrders(userID); err != nil {
					log.Error().Err(err).Int("user_id", userID).Msg("get orders failed")
				}
			}
		}()
	}

	for i := 0; i < totalOrders; i++ {
		jobs <- 1 + rand.Intn(10)
	}
	close(jobs)
	wg.Wait()

	sc.printSummary()
}
