package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/chain"
	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/internal/game/producer"
	"github.com/pricetoss/price-toss-platform/internal/game/repo"
	"github.com/pricetoss/price-toss-platform/internal/game/settlement"
	obinance "github.com/pricetoss/price-toss-platform/internal/oracle/binance"
	"github.com/pricetoss/price-toss-platform/internal/oracle/pyth"
	"github.com/pricetoss/price-toss-platform/internal/shared/config"
	"github.com/pricetoss/price-toss-platform/internal/shared/db"
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

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(context.Background(), pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Kafka producers: desfecho por rodada + DLQ de payouts falhos
	settledWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	defer settledWriter.Close()
	dlqWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutDLQ)
	defer dlqWriter.Close()
	publ := &producer.KafkaPublisher{RoundSettled: settledWriter, PayoutDLQ: dlqWriter}

	// Métricas do worker
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_rounds_settled_total", Help: "rodadas liquidadas"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_lock_missed_total", Help: "rodadas puladas por lock de outro worker"})
	settleErrs := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "tentativas de liquidação com erro"})
	payoutFails := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_payout_failures_total", Help: "payouts individuais que falharam"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_payouts_retried_total", Help: "payouts pagos pela varredura de retry"})
	prometheus.MustRegister(settled, skipped, settleErrs, payoutFails, swept)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	roundRepo := repo.NewRoundRepo(pg)
	betRepo := repo.NewBetRepo(pg)
	userRepo := repo.NewUserRepo(pg)
	txRepo := repo.NewTxRepo(pg)

	var oracle domain.PriceOracle
	if cfg.PriceSource == "pyth" {
		oracle = pyth.New(cfg.PythURL)
	} else {
		oracle = obinance.New(cfg.BinanceURL)
	}
	chainCli := chain.New(cfg.ChainGatewayURL)

	engine := settlement.NewEngine(log, roundRepo, betRepo, userRepo, txRepo,
		oracle, chainCli, cfg.RoundDuration, cfg.PlatformFeeRate,
		settlement.WithPublisher(publ),
	)
	sweeper := settlement.NewSweeper(log, betRepo, userRepo, txRepo, chainCli)

	log.Info("settlement-worker started",
		zap.Duration("round_duration", cfg.RoundDuration),
		zap.Duration("settle_interval", cfg.SettleInterval),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)

	ctx := context.Background()

	// Varredura de payouts falhos fora do caminho quente
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			swept.Add(float64(sweeper.Sweep(ctx)))
		}
	}()

	// Loop principal: a cada tick, liquida as rodadas vencidas.
	// O tick é at-least-once por natureza; a exclusão entre instâncias
	// concorrentes fica por conta do lock condicional no banco.
	ticker := time.NewTicker(cfg.SettleInterval)
	defer ticker.Stop()
	for range ticker.C {
		for _, res := range engine.SettleDue(ctx) {
			switch {
			case res.Skipped:
				skipped.Inc()
			case res.Direction == "":
				// rodada sem desfecho: erro antes do snapshot final
				settleErrs.Inc()
			default:
				settled.Inc()
				payoutFails.Add(float64(len(res.PayoutFails)))
			}
		}
	}
}
