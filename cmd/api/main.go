package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ekomarket/go-shop-orders/internal/config"
	"github.com/ekomarket/go-shop-orders/internal/httpx"
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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	prod.Start(ctx)

	store := &postgres.Store{DB: db}
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Placer:   orders.NewPlacer(store, log),
		Reader:   store,
		Producer: prod,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // stop intake, flush queued events
	cancel()
	prod.WaitClosed()
}
