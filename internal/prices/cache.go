// Package prices mantém o cache Redis de preço corrente por ativo,
// alimentado pelo price-ingest-worker e lido pela API de estado do jogo.
package prices

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tick é o preço corrente de um ativo no cache.
type Tick struct {
	Asset    string    `json:"asset"`
	Price    float64   `json:"price"`
	Source   string    `json:"source"`
	TickedAt time.Time `json:"ticked_at"`
}

// Cache encapsula leitura/escrita de ticks no Redis, com broadcast em
// pub/sub pra quem assina preços ao vivo.
type Cache struct {
	Client  *redis.Client
	TTL     time.Duration
	Channel string
}

func NewCache(c *redis.Client, ttl time.Duration, channel string) *Cache {
	return &Cache{Client: c, TTL: ttl, Channel: channel}
}

func key(asset string) string { return "price:current:" + asset }

// SetCurrent grava o tick com TTL e publica no canal de broadcast.
func (c *Cache) SetCurrent(ctx context.Context, t Tick) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := c.Client.Set(ctx, key(t.Asset), b, c.TTL).Err(); err != nil {
		return err
	}
	if c.Channel != "" {
		return c.Client.Publish(ctx, c.Channel, b).Err()
	}
	return nil
}

// GetCurrent devolve o tick do ativo; found=false quando o cache expirou.
func (c *Cache) GetCurrent(ctx context.Context, asset string) (Tick, bool, error) {
	b, err := c.Client.Get(ctx, key(asset)).Bytes()
	if err == redis.Nil {
		return Tick{}, false, nil
	}
	if err != nil {
		return Tick{}, false, err
	}
	var t Tick
	if err := json.Unmarshal(b, &t); err != nil {
		return Tick{}, false, err
	}
	return t, true, nil
}
