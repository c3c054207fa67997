// Package ingest consome o stream miniTicker da Binance e mantém o cache
// de preços quente.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/prices"
)

// WSClient conecta no stream combinado da Binance e grava cada tick no
// cache Redis. Em caso de desconexão, reconecta com backoff simples.
type WSClient struct {
	BaseURL string // ex: wss://stream.binance.com:9443
	Assets  []string
	Log     *zap.Logger
	Cache   *prices.Cache

	// OnTick é opcional; usado pelos mains pra métricas.
	OnTick func(asset string)
}

// streamURL monta a URL do stream combinado: um miniTicker por ativo.
func (c *WSClient) streamURL() string {
	streams := make([]string, 0, len(c.Assets))
	for _, a := range c.Assets {
		streams = append(streams, strings.ToLower(a)+"usdt@miniTicker")
	}
	return fmt.Sprintf("%s/stream?streams=%s", c.BaseURL, strings.Join(streams, "/"))
}

// Start roda o loop de conexão até o contexto ser cancelado.
func (c *WSClient) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping WS client")
			return
		default:
			if err := c.connectAndListen(ctx); err != nil {
				c.Log.Warn("connection closed", zap.Error(err))
				time.Sleep(3 * time.Second) // aguarda antes de reconectar
			}
		}
	}
}

// combinedMsg é o envelope do stream combinado da Binance.
type combinedMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"` // ex: BTCUSDT
		Close     string `json:"c"` // último preço
	} `json:"data"`
}

func (c *WSClient) connectAndListen(ctx context.Context) error {
	url := c.streamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to binance stream", zap.Int("assets", len(c.Assets)))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var msg combinedMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Log.Warn("invalid message", zap.Error(err))
			continue
		}
		if msg.Data.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(msg.Data.Close, 64)
		if err != nil || price <= 0 {
			c.Log.Warn("invalid tick price",
				zap.String("symbol", msg.Data.Symbol),
				zap.String("price", msg.Data.Close),
			)
			continue
		}

		asset := strings.TrimSuffix(msg.Data.Symbol, "USDT")
		tick := prices.Tick{
			Asset:    asset,
			Price:    price,
			Source:   "binance-ws",
			TickedAt: time.Now().UTC(),
		}
		if err := c.Cache.SetCurrent(ctx, tick); err != nil {
			c.Log.Error("cache set failed", zap.String("asset", asset), zap.Error(err))
			continue
		}
		if c.OnTick != nil {
			c.OnTick(asset)
		}
	}
}
