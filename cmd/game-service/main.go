package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/chain"
	"github.com/pricetoss/price-toss-platform/internal/game/bets"
	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	ghttp "github.com/pricetoss/price-toss-platform/internal/game/http"
	"github.com/pricetoss/price-toss-platform/internal/game/producer"
	"github.com/pricetoss/price-toss-platform/internal/game/repo"
	"github.com/pricetoss/price-toss-platform/internal/game/rounds"
	obinance "github.com/pricetoss/price-toss-platform/internal/oracle/binance"
	"github.com/pricetoss/price-toss-platform/internal/oracle/pyth"
	"github.com/pricetoss/price-toss-platform/internal/prices"
	"github.com/pricetoss/price-toss-platform/internal/shared/cache"
	"github.com/pricetoss/price-toss-platform/internal/shared/config"
	"github.com/pricetoss/price-toss-platform/internal/shared/db"
	skafka "github.com/pricetoss/price-toss-platform/internal/shared/kafka"
	"github.com/pricetoss/price-toss-platform/internal/shared/logger"
	"github.com/pricetoss/price-toss-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(context.Background(), pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis (cache de preço corrente pra /state)
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	priceCache := prices.NewCache(rdb, 0, "")

	// Kafka writer (topic bet_placed)
	betPlacedWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer betPlacedWriter.Close()
	publ := &producer.KafkaPublisher{BetPlaced: betPlacedWriter}

	// deps
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
	roundMgr := rounds.NewManager(log, roundRepo, oracle, 0)
	betSvc := bets.NewService(log, betRepo, userRepo, txRepo, roundMgr, chainCli, publ,
		cfg.TreasuryWallet, cfg.PlatformFeeRate, cfg.Assets)

	// HTTP público
	api := ghttp.NewServer(log, betSvc, roundRepo, betRepo, priceCache, cfg.RoundDuration)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	log.Info("game-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
