// Package binance implementa o oráculo de preço sobre a API REST pública
// da Binance (par USDT como proxy de USD).
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

type tickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice busca o ticker corrente do par <symbol>USDT. Falha alto em
// qualquer resposta inválida; nunca devolve preço <= 0 sem erro.
func (c *Client) GetPrice(ctx context.Context, symbol string) (domain.Snapshot, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%sUSDT", c.BaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("binance ticker: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return domain.Snapshot{}, fmt.Errorf("binance ticker http %d", res.StatusCode)
	}

	var t tickerResp
	if err := json.NewDecoder(res.Body).Decode(&t); err != nil {
		return domain.Snapshot{}, fmt.Errorf("binance ticker decode: %w", err)
	}

	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("binance ticker price %q: %w", t.Price, err)
	}
	if price <= 0 {
		return domain.Snapshot{}, fmt.Errorf("binance ticker returned price %v for %s", price, symbol)
	}

	return domain.Snapshot{
		Price:       price,
		PublishTime: time.Now().UTC(),
		Source:      "binance",
	}, nil
}
