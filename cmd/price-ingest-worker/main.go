package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/ingest"
	"github.com/pricetoss/price-toss-platform/internal/prices"
	"github.com/pricetoss/price-toss-platform/internal/shared/cache"
	"github.com/pricetoss/price-toss-platform/internal/shared/config"
	"github.com/pricetoss/price-toss-platform/internal/shared/logger"
	"github.com/pricetoss/price-toss-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	ticks := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_ingest_ticks_total", Help: "ticks gravados no cache"},
		[]string{"asset"},
	)
	prometheus.MustRegister(ticks)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	// TTL curto: preço velho é pior que preço ausente pra UI
	priceCache := prices.NewCache(rdb, 10*time.Second, cfg.RedisPriceChannel)

	ws := &ingest.WSClient{
		BaseURL: cfg.BinanceWSURL,
		Assets:  cfg.Assets,
		Log:     log,
		Cache:   priceCache,
		OnTick:  func(asset string) { ticks.WithLabelValues(asset).Inc() },
	}

	log.Info("price-ingest-worker started", zap.Int("assets", len(cfg.Assets)))
	ws.Start(context.Background())
}
