package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/hotel-booking/internal/health"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	return cfg
}

func TestNewDependencies_Memory(t *testing.T) {
	deps, err := NewDependencies(context.Background(), testConfig(), prometheus.NewRegistry(), log.WithField("test", "deps"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	assert.NotNil(t, deps.Rooms)
	assert.NotNil(t, deps.Reservations)
	assert.NotNil(t, deps.Payments)
	assert.NotNil(t, deps.Pricing)
	assert.NotNil(t, deps.Idempotency)
	assert.NotNil(t, deps.Auth)
	assert.Nil(t, deps.Reaper, "в ленивом режиме reaper не нужен")

	rooms, err := deps.Repos.Rooms.ListByCode(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, len(seedRooms))
	assert.Equal(t, "101", rooms[0].Code)

	services, err := deps.Repos.Services.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, services, len(seedServices))

	first, err := deps.Repos.Discounts.Get(context.Background(), "disc-first")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstReservationCode, first.Code)
	assert.Equal(t, int64(15), first.Value)

	workers := deps.Workers()
	assert.Len(t, workers, 3)
	assert.Contains(t, workers, "outbox")
	assert.Contains(t, workers, "idempotency-cleanup")
	assert.Contains(t, workers, "confirmation-notifier")
}

func TestNewDependencies_EagerExpiryStartsReaper(t *testing.T) {
	cfg := testConfig()
	cfg.HoldExpiryMode = HoldExpiryEager

	deps, err := NewDependencies(context.Background(), cfg, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	require.NotNil(t, deps.Reaper)
	assert.Contains(t, deps.Workers(), "holds-reaper")
}

func TestNewDependencies_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	for i := 0; i < 2; i++ {
		deps, err := NewDependencies(context.Background(), testConfig(), reg, nil)
		require.NoError(t, err)
		require.NoError(t, deps.Close())
	}
}

func TestNewDependencies_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.StorageDriver = "mongo" }, "unknown storage driver"},
		{"unknown broker", func(c *Config) { c.Broker = "nats" }, "unknown broker"},
		{"unreachable redis", func(c *Config) { c.RedisAddr = "127.0.0.1:1" }, "ping redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewDependencies(context.Background(), cfg, prometheus.NewRegistry(), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDependencies_RegisterHealth(t *testing.T) {
	deps, err := NewDependencies(context.Background(), testConfig(), prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	h := healthcheck.NewHandler("test")
	deps.RegisterHealth(h, 10)

	resp := h.Evaluate(context.Background())
	assert.Equal(t, healthcheck.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "outbox")
	assert.NotContains(t, resp.Checks, "postgres")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
