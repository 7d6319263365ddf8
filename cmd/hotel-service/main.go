package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/app"
	"github.com/vladislavdragonenkov/hotel-booking/internal/version"
)

func main() {
	cfg, err := app.LoadConfig(".env")
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	app.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"broker":       cfg.Broker,
		"hold_expiry":  cfg.HoldExpiryMode,
	}).Info("запускаем hotel-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("hotel-service остановлен")
}
