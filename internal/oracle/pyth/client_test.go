package pyth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricetoss/price-toss-platform/internal/oracle/pyth"
)

const hermesBody = `{
  "parsed": [
    {
      "id": "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b6a9b4b2d9ff1b2f1a0b2a4",
      "price": {
        "price": "6425012000000",
        "conf": "3250000000",
        "expo": -8,
        "publish_time": 1735689600
      }
    }
  ]
}`

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("ids[]"))
		w.Write([]byte(hermesBody))
	}))
	defer srv.Close()

	snap, err := pyth.New(srv.URL).GetPrice(context.Background(), "BTC")
	require.NoError(t, err)

	// 6425012000000 * 10^-8
	assert.InDelta(t, 64250.12, snap.Price, 1e-6)
	assert.InDelta(t, 32.5, snap.Conf, 1e-6)
	assert.Equal(t, "pyth", snap.Source)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), snap.PublishTime)
}

func TestGetPrice_UnknownSymbol(t *testing.T) {
	_, err := pyth.New("http://hermes.invalid").GetPrice(context.Background(), "DOGE2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no feed id")
}

func TestGetPrice_EmptyParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"parsed":[]}`))
	}))
	defer srv.Close()

	_, err := pyth.New(srv.URL).GetPrice(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestGetPrice_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := pyth.New(srv.URL).GetPrice(context.Background(), "BTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
