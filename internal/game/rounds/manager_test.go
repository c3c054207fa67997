package rounds_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/internal/game/repo/memory"
	"github.com/pricetoss/price-toss-platform/internal/game/rounds"
)

type stubOracle struct {
	mu    sync.Mutex
	snap  domain.Snapshot
	err   error
	calls int
}

func (o *stubOracle) GetPrice(_ context.Context, _ string) (domain.Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return domain.Snapshot{}, o.err
	}
	return o.snap, nil
}

func newManager(t *testing.T, store *memory.RoundStore, oracle *stubOracle) *rounds.Manager {
	t.Helper()
	return rounds.NewManager(zap.NewNop(), store, oracle, time.Second)
}

func TestGetOrCreateActiveRound_CreatesWithSnapshot(t *testing.T) {
	store := memory.NewRoundStore()
	oracle := &stubOracle{snap: domain.Snapshot{Price: 65000.5, Conf: 12.3, Source: "pyth", PublishTime: time.Now()}}
	mgr := newManager(t, store, oracle)

	r, err := mgr.GetOrCreateActiveRound(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	assert.Equal(t, domain.RoundActive, r.Status)
	assert.Equal(t, "BTC", r.Asset)
	assert.Equal(t, 65000.5, r.Start.Price)
	assert.Equal(t, "pyth", r.Start.Source)
	assert.Nil(t, r.End)
}

func TestGetOrCreateActiveRound_ReturnsExisting(t *testing.T) {
	store := memory.NewRoundStore()
	oracle := &stubOracle{snap: domain.Snapshot{Price: 100, Source: "binance"}}
	mgr := newManager(t, store, oracle)

	first, err := mgr.GetOrCreateActiveRound(context.Background(), "SOL")
	require.NoError(t, err)

	second, err := mgr.GetOrCreateActiveRound(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	// o oráculo só é consultado na criação
	assert.Equal(t, 1, oracle.calls)
}

func TestGetOrCreateActiveRound_OracleFailure(t *testing.T) {
	store := memory.NewRoundStore()
	oracle := &stubOracle{err: errors.New("feed down")}
	mgr := newManager(t, store, oracle)

	_, err := mgr.GetOrCreateActiveRound(context.Background(), "ETH")
	require.ErrorIs(t, err, domain.ErrRoundUnavailable)

	// nenhuma rodada parcial deixada pra trás
	_, err = store.FindActive(context.Background(), "ETH")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreateActiveRound_RejectsNonPositivePrice(t *testing.T) {
	store := memory.NewRoundStore()
	oracle := &stubOracle{snap: domain.Snapshot{Price: 0, Source: "binance"}}
	mgr := newManager(t, store, oracle)

	_, err := mgr.GetOrCreateActiveRound(context.Background(), "BTC")
	require.ErrorIs(t, err, domain.ErrRoundUnavailable)
}

// No máximo uma rodada ativa por ativo: N chamadas concorrentes sem rodada
// existente produzem exatamente uma criação e N-1 lookups da mesma linha.
func TestGetOrCreateActiveRound_ConcurrentFirstBettors(t *testing.T) {
	store := memory.NewRoundStore()
	oracle := &stubOracle{snap: domain.Snapshot{Price: 250, Source: "binance"}}
	mgr := newManager(t, store, oracle)

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := mgr.GetOrCreateActiveRound(context.Background(), "DOGE")
			if err == nil {
				ids[i] = r.ID
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "todas as chamadas devem ver a mesma rodada")
	}
}
