package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openfleet/ride-booking/internal/config"
	"github.com/openfleet/ride-booking/internal/db"
)

// The simulator hammers a deliberately small slot pool with concurrent
// booking requests, then audits the store: for every slot identity at most
// one booking may have reached "booked".

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	BookRatio   float64
	CancelRatio float64
	ReadRatio   float64
	SlotLimit   int
	Users       int
	PostgresDSN string
}

type slotRef struct {
	BikeID    string
	Date      string
	StartTime string
	EndTime   string
}

type DataPool struct {
	Slots []slotRef
	Users []string

	mu         sync.RWMutex
	references []string
}

func (dp *DataPool) AddReference(ref string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.references = append(dp.references, ref)
}

func (dp *DataPool) GetRandomReference(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.references) == 0 {
		return "", false
	}
	return dp.references[rng.Intn(len(dp.references))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, rejected bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if rejected {
		atomic.AddInt64(&om.Rejected, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Book     OperationMetrics
	Cancel   OperationMetrics
	ReadRef  OperationMetrics
	ListUser OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d book=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d contended slots, %d synthetic users", len(dataPool.Slots), len(dataPool.Users))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	// The point of the whole exercise: prove no slot was double-booked.
	auditCtx, auditCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer auditCancel()
	if err := auditDoubleBookings(auditCtx, pgPool); err != nil {
		log.Fatalf("audit: %v", err)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.5),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
		SlotLimit:   getInt("SIM_SLOT_LIMIT", 50),
		Users:       getInt("SIM_USERS", 200),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	// A small slot pool keeps contention high; that is the scenario worth
	// simulating.
	rows, err := pool.Query(ctx, `
		SELECT bike_id, date, start_time, end_time
		FROM availability_slots
		ORDER BY bike_id, date, start_time
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.BikeID, &s.Date, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}

	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded, run cmd/seed first")
	}

	for i := 0; i < cfg.Users; i++ {
		dataPool.Users = append(dataPool.Users, fmt.Sprintf("sim-user-%03d@example.com", i))
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookRatio {
				s.doBook(ctx, rng)
			} else if r < s.config.BookRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				if rng.Intn(2) == 0 {
					s.doReadReference(ctx, rng)
				} else {
					s.doListByUser(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	user := s.pool.Users[rng.Intn(len(s.pool.Users))]

	start := time.Now()

	reqBody := map[string]string{
		"bike_id":    slot.BikeID,
		"date":       slot.Date,
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
		"user_id":    user,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", user)
	req.Header.Set("X-User-Role", "RegisteredCustomer")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	rejected := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			success = true
			var bookResp struct {
				BookingReference string `json:"booking_reference"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &bookResp)
				if bookResp.BookingReference != "" {
					s.pool.AddReference(bookResp.BookingReference)
				}
			}
		case http.StatusNotFound, http.StatusConflict:
			// Slot already claimed or raced away; an expected outcome here.
			rejected = true
		}
	}

	s.metrics.Book.Record(latency, success, rejected)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.GetRandomReference(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/bookings/%s/cancel", s.config.APIBaseURL, ref), nil)
	// Operators may cancel any booking; saves tracking reference ownership.
	req.Header.Set("X-User-Id", "sim-operator@example.com")
	req.Header.Set("X-User-Role", "FranchiseOperator")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	rejected := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			rejected = true
		}
	}

	s.metrics.Cancel.Record(latency, success, rejected)
}

func (s *Simulator) doReadReference(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.GetRandomReference(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/bookings/%s", s.config.APIBaseURL, ref), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadRef.Record(latency, success, false)
}

func (s *Simulator) doListByUser(ctx context.Context, rng *rand.Rand) {
	user := s.pool.Users[rng.Intn(len(s.pool.Users))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/bookings?user_id=%s&limit=20&offset=0", s.config.APIBaseURL, user), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListUser.Record(latency, success, false)
}

// auditDoubleBookings fails loudly if any slot identity ended up with more
// than one booking in an active status.
func auditDoubleBookings(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT bike_id, date, start_time, end_time, count(*)
		FROM bookings
		WHERE status IN ('pending', 'booked')
		GROUP BY bike_id, date, start_time, end_time
		HAVING count(*) > 1
	`)
	if err != nil {
		return fmt.Errorf("query active bookings: %w", err)
	}
	defer rows.Close()

	violations := 0
	for rows.Next() {
		var bikeID, date, startTime, endTime string
		var n int64
		if err := rows.Scan(&bikeID, &date, &startTime, &endTime, &n); err != nil {
			return err
		}
		violations++
		log.Printf("DOUBLE BOOKING: bike=%s date=%s %s-%s active_bookings=%d",
			bikeID, date, startTime, endTime, n)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if violations > 0 {
		return fmt.Errorf("%d slot identities with more than one active booking", violations)
	}

	log.Println("audit clean: no slot has more than one active booking")
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by Reference", &s.metrics.ReadRef)
	printOperationReport("List by User", &s.metrics.ListUser)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
