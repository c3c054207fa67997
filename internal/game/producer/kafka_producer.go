package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	skafka "github.com/pricetoss/price-toss-platform/internal/shared/kafka"
	"github.com/pricetoss/price-toss-platform/pkg/contracts/events"
)

// KafkaPublisher publica os eventos do core. Um writer por tópico; writers
// nil desligam o tópico correspondente (útil em dev e teste).
type KafkaPublisher struct {
	BetPlaced    *kafka.Writer
	RoundSettled *kafka.Writer
	PayoutDLQ    *kafka.Writer
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	if p.BetPlaced == nil {
		return nil
	}
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return skafka.WriteJSON(ctx, p.BetPlaced, e.BetID, b)
}

func (p *KafkaPublisher) PublishRoundSettled(ctx context.Context, e events.RoundSettled) error {
	if p.RoundSettled == nil {
		return nil
	}
	b, _ := json.Marshal(e)
	return skafka.WriteJSON(ctx, p.RoundSettled, e.RoundID, b)
}

func (p *KafkaPublisher) PublishPayoutFailed(ctx context.Context, e events.PayoutFailed) error {
	if p.PayoutDLQ == nil {
		return nil
	}
	b, _ := json.Marshal(e)
	return skafka.WriteJSON(ctx, p.PayoutDLQ, e.BetID, b)
}
