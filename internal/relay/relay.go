// Package relay repassa eventos do Kafka pra canais pub/sub do Redis,
// onde os clientes de tempo real (UI, websockets) conseguem assinar.
package relay

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	skafka "github.com/pricetoss/price-toss-platform/internal/shared/kafka"
)

// Pipe liga um tópico Kafka a um canal Redis. O payload passa intacto;
// o relay não interpreta eventos.
type Pipe struct {
	Log     *zap.Logger
	Reader  *kafka.Reader
	Redis   *redis.Client
	Channel string

	// OnRelay é opcional; usado pelos mains pra métricas.
	OnRelay func()
}

// Run consome até o contexto ser cancelado. Falha de publish não comita
// pra trás: o broadcast é best-effort e o tópico continua a fonte da verdade.
func (p *Pipe) Run(ctx context.Context) error {
	for {
		key, value, err := skafka.ReadNext(ctx, p.Reader)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := p.Redis.Publish(ctx, p.Channel, value).Err(); err != nil {
			p.Log.Warn("broadcast publish failed",
				zap.String("channel", p.Channel),
				zap.ByteString("key", key),
				zap.Error(err),
			)
			continue
		}
		if p.OnRelay != nil {
			p.OnRelay()
		}
	}
}
