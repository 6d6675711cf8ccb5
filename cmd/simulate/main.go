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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/scheduling-engine/internal/config"
	"github.com/telecare/scheduling-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ConfirmRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	PatientLimit  int
	ProviderLimit int
	PostgresDSN   string
}

// simAppointment keeps the party IDs so follow-up calls can carry the
// right identity headers.
type simAppointment struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
}

type DataPool struct {
	Patients  []uuid.UUID
	Providers []uuid.UUID

	mu           sync.RWMutex
	appointments []simAppointment
}

func (dp *DataPool) AddAppointment(a simAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (simAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return simAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
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
	SlotQuery OperationMetrics
	Booking   OperationMetrics
	Confirm   OperationMetrics
	Cancel    OperationMetrics
	ReadByID  OperationMetrics
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

	log.Printf("config: duration=%s workers=%d booking=%.2f confirm=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.CancelRatio, cfg.ReadRatio)

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

	log.Printf("loaded: %d patients, %d providers", len(dataPool.Patients), len(dataPool.Providers))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 100),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
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

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT p.id FROM providers p
		WHERE EXISTS (
			SELECT 1 FROM weekly_availability w
			WHERE w.provider_id = p.id AND w.is_available
		)
		LIMIT $1
	`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, id)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers with availability loaded")
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
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

// doBooking asks for a random provider's open slots over the next week,
// picks one, and books it as a random patient. Contention on popular
// slots is the point.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	slot, ok := s.fetchOpenSlot(ctx, rng, providerID)
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]any{
		"provider_id":       providerID.String(),
		"patient_id":        patientID.String(),
		"start_at":          slot,
		"duration_minutes":  30,
		"consultation_type": "video",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", patientID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				_ = json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.ID != uuid.Nil {
					s.pool.AddAppointment(simAppointment{
						ID:         apptResp.ID,
						ProviderID: providerID,
						PatientID:  patientID,
					})
				}
			}
		case http.StatusConflict, http.StatusUnprocessableEntity:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

// fetchOpenSlot picks a random available slot from tomorrow's week for
// the provider. The roundtrip is recorded under SlotQuery.
func (s *Simulator) fetchOpenSlot(ctx context.Context, rng *rand.Rand, providerID uuid.UUID) (string, bool) {
	from := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	to := time.Now().AddDate(0, 0, 8).Format("2006-01-02")

	start := time.Now()

	url := fmt.Sprintf("%s/providers/%s/slots?from=%s&to=%s&duration=30",
		s.config.APIBaseURL, providerID.String(), from, to)
	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.metrics.SlotQuery.Record(latency, false, false)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.SlotQuery.Record(latency, false, false)
		return "", false
	}
	s.metrics.SlotQuery.Record(latency, true, false)

	var slotResp struct {
		Slots []struct {
			Start     string `json:"start"`
			Available bool   `json:"available"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slotResp); err != nil {
		return "", false
	}

	var open []string
	for _, sl := range slotResp.Slots {
		if sl.Available {
			open = append(open, sl.Start)
		}
	}
	if len(open) == 0 {
		return "", false
	}
	return open[rng.Intn(len(open))], true
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	s.updateStatus(ctx, appt, "confirmed", appt.ProviderID, "provider", &s.metrics.Confirm)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	// Providers cancel so the run is not bound by the patient window.
	s.updateStatus(ctx, appt, "cancelled", appt.ProviderID, "provider", &s.metrics.Cancel)
}

func (s *Simulator) updateStatus(ctx context.Context, appt simAppointment, status string, actorID uuid.UUID, role string, om *OperationMetrics) {
	start := time.Now()

	body, _ := json.Marshal(map[string]string{"status": status})
	req, _ := http.NewRequestWithContext(ctx, "PUT",
		fmt.Sprintf("%s/appointments/%s/status", s.config.APIBaseURL, appt.ID.String()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", actorID.String())
	req.Header.Set("X-User-Role", role)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			success = true
		case http.StatusConflict, http.StatusUnprocessableEntity:
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, appt.ID.String()), nil)
	req.Header.Set("X-User-ID", appt.PatientID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Slot Query", &s.metrics.SlotQuery)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
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
