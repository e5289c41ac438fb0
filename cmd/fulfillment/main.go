package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ekomarket/go-shop-orders/internal/config"
	"github.com/ekomarket/go-shop-orders/internal/fulfillment"
	kafkax "github.com/ekomarket/go-shop-orders/internal/kafka"
	"github.com/ekomarket/go-shop-orders/internal/orders"
	"github.com/ekomarket/go-shop-orders/internal/postgres"
	"github.com/ekomarket/go-shop-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	prod.Start(ctx)

	svc := &fulfillment.Service{
		Store:       &postgres.Store{DB: db},
		Redis:       rdb,
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-fulfillment",
		Log:         log,
	}

	group := getenv("FULFILLMENT_GROUP", "fulfillment-svc")
	workers := atoiDefault(os.Getenv("FULFILLMENT_WORKERS"), 8)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderPlaced, workers, log)

	go func() {
		log.Info("fulfillment consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderPlaced),
			zap.Int("workers", workers),
		)
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			log.Warn("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}
