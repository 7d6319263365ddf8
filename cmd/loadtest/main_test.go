package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/app"
)

const testSecret = "loadtest-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.JWTSecret = testSecret

	a, err := app.New(context.Background(), cfg, app.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.APIHandler())
	t.Cleanup(srv.Close)
	return srv
}

func loadConfig(baseURL string, mode loadMode, total int) config {
	return config{
		baseURL:     baseURL,
		secret:      testSecret,
		total:       total,
		concurrency: 4,
		timeout:     5 * time.Second,
		mode:        mode,
		rooms:       []string{"room-101", "room-102", "room-201"},
		nights:      2,
		startDate:   time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-base-url=http://hotel:8080/",
		"-mode=contention",
		"-rooms=room-1, ,room-2",
		"-start-date=2030-01-15",
		"-total=10",
	}, func(key string) string {
		if key == "HOTEL_JWT_SECRET" {
			return "env-secret"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, "http://hotel:8080", cfg.baseURL)
	assert.Equal(t, "env-secret", cfg.secret)
	assert.Equal(t, modeContention, cfg.mode)
	assert.Equal(t, []string{"room-1", "room-2"}, cfg.rooms)
	assert.Equal(t, time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC), cfg.startDate)
	assert.Equal(t, 10, cfg.total)
}

func TestParseConfig_Errors(t *testing.T) {
	withSecret := func(string) string { return "s" }
	tests := []struct {
		name string
		args []string
		env  func(string) string
		want string
	}{
		{"no secret", nil, func(string) string { return "" }, "jwt-secret"},
		{"bad mode", []string{"-mode=storm"}, withSecret, "unsupported mode"},
		{"bad date", []string{"-start-date=01/02/2030"}, withSecret, "start-date"},
		{"zero total", []string{"-total=0"}, withSecret, "total must be > 0"},
		{"no rooms", []string{"-rooms= , "}, withSecret, "at least one room"},
		{"zero nights", []string{"-nights=0"}, withSecret, "nights must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunLoad_Modes(t *testing.T) {
	for _, mode := range []loadMode{modeHold, modeHoldPay, modeHoldCancel} {
		t.Run(string(mode), func(t *testing.T) {
			srv := newTestServer(t)

			result, err := runLoad(context.Background(), loadConfig(srv.URL, mode, 9), srv.Client())
			require.NoError(t, err)
			assert.EqualValues(t, 9, result.TotalScenarios)
			assert.EqualValues(t, 0, result.FailedScenarios)
			assert.EqualValues(t, 9, result.Endpoints["create_reservation"].Statuses["201"])
		})
	}
}

func TestRunLoad_HoldPayConfirmsEveryReservation(t *testing.T) {
	srv := newTestServer(t)

	result, err := runLoad(context.Background(), loadConfig(srv.URL, modeHoldPay, 6), srv.Client())
	require.NoError(t, err)
	assert.EqualValues(t, 6, result.Endpoints["initiate_payment"].Success)
	assert.EqualValues(t, 6, result.Endpoints["simulate_payment"].Success)
}

func TestRunLoad_ContentionHasSingleWinner(t *testing.T) {
	srv := newTestServer(t)
	cfg := loadConfig(srv.URL, modeContention, 16)
	cfg.concurrency = 8

	result, err := runLoad(context.Background(), cfg, srv.Client())
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.ContentionWinners)
	assert.EqualValues(t, 15, result.Endpoints["create_reservation"].Statuses["409"])
	assert.EqualValues(t, 0, result.FailedScenarios)
}

func TestRunLoad_UnauthorizedFails(t *testing.T) {
	srv := newTestServer(t)
	cfg := loadConfig(srv.URL, modeHold, 2)
	cfg.secret = "wrong-secret"

	result, err := runLoad(context.Background(), cfg, srv.Client())
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.FailedScenarios)
	assert.EqualValues(t, 2, result.Endpoints["create_reservation"].Statuses["401"])
}

func TestRunLoad_ContentionWithoutWinnerIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	result, err := runLoad(context.Background(), loadConfig(srv.URL, modeContention, 3), srv.Client())
	require.Error(t, err)
	assert.EqualValues(t, 0, result.ContentionWinners)
}

func TestLatencySummary(t *testing.T) {
	assert.Equal(t, latencySummary{}, buildLatencySummary(nil))

	s := buildLatencySummary([]float64{4, 1, 3, 2, 5})
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 3.0, s.Avg)
	assert.Equal(t, 3.0, s.P50)
	assert.InDelta(t, 4.8, s.P95, 1e-9)
	assert.Equal(t, 0.25, ratio(1, 4))
	assert.Equal(t, 0.0, ratio(1, 0))
}

func TestReportOutput(t *testing.T) {
	col := newCollector()
	col.record("scenario", 2*time.Millisecond, "ok", true)
	col.record("create_reservation", time.Millisecond, "201", true)
	result := col.buildReport(time.Now(), time.Second, modeHold)

	var buf bytes.Buffer
	printReport(&buf, result)
	assert.Contains(t, buf.String(), "mode=hold total=1 success=1 failed=0")
	assert.Contains(t, buf.String(), "create_reservation: calls=1")

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, writeJSONReport("report.json", result))
	_, err = os.Stat(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	require.Error(t, writeJSONReport("../escape.json", result))
}
