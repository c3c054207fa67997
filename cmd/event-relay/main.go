package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/relay"
	"github.com/pricetoss/price-toss-platform/internal/shared/cache"
	"github.com/pricetoss/price-toss-platform/internal/shared/config"
	skafka "github.com/pricetoss/price-toss-platform/internal/shared/kafka"
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

	relayed := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "event_relay_messages_total", Help: "eventos repassados pro Redis"},
		[]string{"topic"},
	)
	prometheus.MustRegister(relayed)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	settledReader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundSettled, cfg.RelayGroupID)
	defer settledReader.Close()

	settledPipe := &relay.Pipe{
		Log:     log,
		Reader:  settledReader,
		Redis:   rdb,
		Channel: cfg.RedisSettledChannel,
		OnRelay: func() { relayed.WithLabelValues(cfg.TopicRoundSettled).Inc() },
	}

	log.Info("event-relay started",
		zap.String("topic", cfg.TopicRoundSettled),
		zap.String("channel", cfg.RedisSettledChannel),
	)
	if err := settledPipe.Run(context.Background()); err != nil {
		log.Fatal("relay stopped", zap.Error(err))
	}
}
