// Команда loadtest гоняет сценарии бронирования против HTTP API.
// Режим contention проверяет, что из параллельных броней одной комнаты выигрывает одна.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/transport/httpapi"
)

type loadMode string

const (
	modeHold       loadMode = "hold"
	modeHoldPay    loadMode = "hold-pay"
	modeHoldCancel loadMode = "hold-cancel"
	modeContention loadMode = "contention"
)

type config struct {
	baseURL     string
	secret      string
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	rooms       []string
	nights      int
	startDate   time.Time
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time                 `json:"started_at"`
	DurationSeconds   float64                   `json:"duration_seconds"`
	Mode              loadMode                  `json:"mode"`
	TotalScenarios    int64                     `json:"total_scenarios"`
	SuccessScenarios  int64                     `json:"success_scenarios"`
	FailedScenarios   int64                     `json:"failed_scenarios"`
	ErrorRate         float64                   `json:"error_rate"`
	RPS               float64                   `json:"rps"`
	ContentionWinners int64                     `json:"contention_winners,omitempty"`
	ScenarioLatencyMs latencySummary            `json:"scenario_latency_ms"`
	Endpoints         map[string]endpointReport `json:"endpoints"`
}

type endpointStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func newCollector() *collector {
	return &collector{endpoints: make(map[string]*endpointStats)}
}

func (c *collector) record(name string, latency time.Duration, status string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.endpoints[name]
	if !found {
		stats = &endpointStats{statuses: make(map[string]int64)}
		c.endpoints[name] = stats
	}
	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[status]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration, mode loadMode) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Mode:            mode,
		Endpoints:       make(map[string]endpointReport, len(c.endpoints)),
	}
	for name, stats := range c.endpoints {
		statuses := make(map[string]int64, len(stats.statuses))
		for k, v := range stats.statuses {
			statuses[k] = v
		}
		result.Endpoints[name] = endpointReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statuses,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	if scenario, ok := c.endpoints["scenario"]; ok {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg       config
		mode      string
		rooms     string
		startDate string
	)
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "hotel-service HTTP address")
	fs.StringVar(&cfg.secret, "jwt-secret", "", "HS256 secret for test tokens (fallback: HOTEL_JWT_SECRET)")
	fs.IntVar(&cfg.total, "total", 200, "scenarios to execute")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeHoldPay), "hold | hold-pay | hold-cancel | contention")
	fs.StringVar(&rooms, "rooms", "room-101,room-102,room-201", "room ids, comma-separated")
	fs.IntVar(&cfg.nights, "nights", 2, "nights per reservation")
	fs.StringVar(&startDate, "start-date", "", "first check-in date YYYY-MM-DD (default: 30 days ahead)")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.secret == "" {
		cfg.secret = getenv("HOTEL_JWT_SECRET")
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	for _, r := range strings.Split(rooms, ",") {
		if r = strings.TrimSpace(r); r != "" {
			cfg.rooms = append(cfg.rooms, r)
		}
	}
	switch m := loadMode(strings.TrimSpace(mode)); m {
	case modeHold, modeHoldPay, modeHoldCancel, modeContention:
		cfg.mode = m
	default:
		return config{}, fmt.Errorf("unsupported mode: %s", mode)
	}

	if startDate == "" {
		cfg.startDate = domain.CivilDate(time.Now().AddDate(0, 0, 30), time.UTC)
	} else {
		d, err := domain.ParseDate(startDate)
		if err != nil {
			return config{}, fmt.Errorf("start-date: %w", err)
		}
		cfg.startDate = d
	}

	switch {
	case cfg.baseURL == "":
		return config{}, errors.New("base-url is required")
	case cfg.secret == "":
		return config{}, errors.New("jwt-secret (or HOTEL_JWT_SECRET) is required")
	case cfg.total <= 0:
		return config{}, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case len(cfg.rooms) == 0:
		return config{}, errors.New("at least one room is required")
	case cfg.nights <= 0:
		return config{}, errors.New("nights must be > 0")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := runLoad(context.Background(), cfg, http.DefaultClient)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad выполняет cfg.total сценариев. В режиме contention ошибка означает двойную бронь.
func runLoad(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	auth := httpapi.NewAuthenticator([]byte(cfg.secret))
	runID := strconv.FormatInt(time.Now().UnixNano(), 36)
	col := newCollector()

	var winners int64
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	startedAt := time.Now()

	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				token, err := auth.Sign(fmt.Sprintf("load-%s-%d", runID, i), domain.RoleUser, time.Hour)
				if err != nil {
					col.record("scenario", 0, "sign_error", false)
					continue
				}
				sc := &scenario{cfg: cfg, http: httpClient, token: token, col: col}
				won, _ := sc.run(ctx, i)
				if won {
					atomic.AddInt64(&winners, 1)
				}
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt), cfg.mode)
	if cfg.mode == modeContention {
		result.ContentionWinners = winners
		if winners != 1 {
			return result, fmt.Errorf("contention: expected exactly one winning reservation, got %d", winners)
		}
	}
	return result, nil
}

type scenario struct {
	cfg   config
	http  *http.Client
	token string
	col   *collector
}

// run возвращает true, если бронь создана.
func (s *scenario) run(ctx context.Context, index int) (created bool, err error) {
	start := time.Now()
	status := "ok"
	defer func() {
		if err != nil && status == "ok" {
			status = "error"
		}
		s.col.record("scenario", time.Since(start), status, err == nil)
	}()

	roomID, checkIn := s.slot(index)
	var res struct {
		Reservation struct {
			ID string `json:"id"`
		} `json:"reservation"`
	}
	code, err := s.call(ctx, "create_reservation", http.MethodPost, "/api/v1/reservations", map[string]any{
		"room_id":   roomID,
		"check_in":  checkIn.Format(time.DateOnly),
		"check_out": checkIn.AddDate(0, 0, s.cfg.nights).Format(time.DateOnly),
		"guests":    1,
	}, &res, http.StatusCreated)
	if s.cfg.mode == modeContention {
		if code == http.StatusConflict {
			return false, nil
		}
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	switch s.cfg.mode {
	case modeHoldPay:
		var pay struct {
			Payment struct {
				ID string `json:"id"`
			} `json:"payment"`
		}
		if _, err := s.call(ctx, "initiate_payment", http.MethodPost, "/api/v1/payments/initiate", map[string]any{
			"reservation_id": res.Reservation.ID,
			"method":         string(domain.PaymentMethodYape),
			"phone":          "900000000",
		}, &pay, http.StatusCreated); err != nil {
			return true, err
		}
		if _, err := s.call(ctx, "simulate_payment", http.MethodPost,
			"/api/v1/payments/simulate/yape/"+pay.Payment.ID, nil, nil, http.StatusOK); err != nil {
			return true, err
		}
	case modeHoldCancel:
		if _, err := s.call(ctx, "cancel_reservation", http.MethodPost,
			"/api/v1/reservations/"+res.Reservation.ID+"/cancel", nil, nil, http.StatusOK); err != nil {
			return true, err
		}
	}
	return true, nil
}

// slot раскладывает сценарии по комнатам и непересекающимся датам.
func (s *scenario) slot(index int) (string, time.Time) {
	if s.cfg.mode == modeContention {
		return s.cfg.rooms[0], s.cfg.startDate
	}
	room := s.cfg.rooms[index%len(s.cfg.rooms)]
	offset := (index / len(s.cfg.rooms)) * s.cfg.nights
	return room, s.cfg.startDate.AddDate(0, 0, offset)
}

func (s *scenario) call(ctx context.Context, name, method, path string, body, out any, want int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		s.col.record(name, time.Since(start), "transport_error", false)
		return 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	s.col.record(name, time.Since(start), strconv.Itoa(resp.StatusCode), resp.StatusCode == want)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode != want {
		return resp.StatusCode, fmt.Errorf("%s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: decode response: %w", name, err)
		}
	}
	return resp.StatusCode, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		result.Mode, result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	if result.Mode == modeContention {
		_, _ = fmt.Fprintf(w, "contention winners=%d\n", result.ContentionWinners)
	}
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min, result.ScenarioLatencyMs.Avg, result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95, result.ScenarioLatencyMs.P99, result.ScenarioLatencyMs.Max)

	names := make([]string, 0, len(result.Endpoints))
	for name := range result.Endpoints {
		if name != "scenario" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Endpoints[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
