// Package pyth implementa o oráculo de preço sobre a API Hermes da Pyth
// Network, com intervalo de confiança e publish time do feed.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// feedIDs mapeia símbolo → price feed id do par USD na Pyth.
var feedIDs = map[string]string{
	"BTC": "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b6a9b4b2d9ff1b2f1a0b2a4",
	"ETH": "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"SOL": "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
}

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

type latestResp struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// GetPrice busca o último update do feed USD do símbolo. price e conf vêm
// como inteiros escalados por 10^expo (expo normalmente negativo).
func (c *Client) GetPrice(ctx context.Context, symbol string) (domain.Snapshot, error) {
	id, ok := feedIDs[symbol]
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("pyth: no feed id mapped for %s", symbol)
	}

	url := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", c.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("pyth hermes: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return domain.Snapshot{}, fmt.Errorf("pyth hermes http %d", res.StatusCode)
	}

	var out latestResp
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return domain.Snapshot{}, fmt.Errorf("pyth hermes decode: %w", err)
	}
	if len(out.Parsed) == 0 {
		return domain.Snapshot{}, fmt.Errorf("pyth hermes: empty response for %s", symbol)
	}

	p := out.Parsed[0].Price
	priceInt, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("pyth price %q: %w", p.Price, err)
	}
	confInt, _ := strconv.ParseFloat(p.Conf, 64)

	scale := math.Pow10(p.Expo)
	price := priceInt * scale
	if price <= 0 {
		return domain.Snapshot{}, fmt.Errorf("pyth returned price %v for %s", price, symbol)
	}

	return domain.Snapshot{
		Price:       price,
		Conf:        confInt * scale,
		PublishTime: time.Unix(p.PublishTime, 0).UTC(),
		Source:      "pyth",
	}, nil
}
