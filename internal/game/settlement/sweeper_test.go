package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/internal/game/repo/memory"
	"github.com/pricetoss/price-toss-platform/internal/game/settlement"
)

func newSweeperFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rounds:  memory.NewRoundStore(),
		bets:    memory.NewBetStore(),
		users:   memory.NewUserStore(),
		txs:     memory.NewTxStore(),
		payouts: &stubPayouts{failFor: map[string]bool{}},
	}
	return f
}

func (f *fixture) addFailedPayout(t *testing.T, wallet string, stake, actualWin float64) *domain.Bet {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.GetOrCreateByWallet(ctx, wallet)
	require.NoError(t, err)
	b := &domain.Bet{
		ID:            uuid.NewString(),
		RoundID:       uuid.NewString(),
		UserID:        u.ID,
		WalletAddress: wallet,
		Prediction:    domain.PredictionUp,
		Multiplier:    2,
		StakeAmount:   stake,
		Status:        domain.BetPending,
		DepositTxSig:  "dep-" + wallet,
	}
	require.NoError(t, f.bets.Insert(ctx, b))
	require.NoError(t, f.bets.MarkPayoutFailed(ctx, b.ID, actualWin))
	return b
}

// O retry paga stake + actual_win gravado na falha; nada é recalculado.
func TestSweep_RetriesStoredAmount(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()
	bet := f.addFailedPayout(t, "walletA", 4, 11.40)

	sw := settlement.NewSweeper(zap.NewNop(), f.bets, f.users, f.txs, f.payouts)
	paid := sw.Sweep(ctx)
	assert.Equal(t, 1, paid)

	sent, n := f.payouts.sentTo("walletA")
	assert.Equal(t, 1, n)
	assert.InDelta(t, 15.40, sent, 1e-9)

	got, _ := f.bets.Get(ctx, bet.ID)
	assert.Equal(t, domain.BetWon, got.Status)
	assert.InDelta(t, 11.40, got.ActualWin, 1e-9)

	u, _ := f.users.GetByWallet(ctx, "walletA")
	assert.InDelta(t, 11.40, u.TotalWon, 1e-9)
	assert.Equal(t, 1, u.WinStreak)

	require.Len(t, f.txs.Records, 1)
	assert.Equal(t, domain.TxPayout, f.txs.Records[0].Type)
}

// Transferência falhando de novo deixa a aposta na fila pra próxima
// varredura, sem mudar status.
func TestSweep_KeepsFailedInQueue(t *testing.T) {
	f := newSweeperFixture(t)
	f.payouts.failFor["walletA"] = true
	ctx := context.Background()
	bet := f.addFailedPayout(t, "walletA", 4, 11.40)
	okBet := f.addFailedPayout(t, "walletB", 2, 2.85)

	sw := settlement.NewSweeper(zap.NewNop(), f.bets, f.users, f.txs, f.payouts)
	paid := sw.Sweep(ctx)
	assert.Equal(t, 1, paid)

	got, _ := f.bets.Get(ctx, bet.ID)
	assert.Equal(t, domain.BetPayoutFailed, got.Status)

	gotOK, _ := f.bets.Get(ctx, okBet.ID)
	assert.Equal(t, domain.BetWon, gotOK.Status)

	// segunda varredura com a chain de volta paga o que restou
	f.payouts.mu.Lock()
	f.payouts.failFor["walletA"] = false
	f.payouts.mu.Unlock()

	paid = sw.Sweep(ctx)
	assert.Equal(t, 1, paid)
	got, _ = f.bets.Get(ctx, bet.ID)
	assert.Equal(t, domain.BetWon, got.Status)
}

type markWonErrStore struct {
	*memory.BetStore
}

func (s *markWonErrStore) MarkWon(context.Context, string, float64) (bool, error) {
	return false, errors.New("connection reset")
}

// Transferência que sai mas falha ao marcar won ainda deixa rastro no
// ledger; sem isso o dinheiro que já saiu fica invisível pra auditoria.
func TestSweep_LedgerRecordedWhenMarkWonFails(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()
	bet := f.addFailedPayout(t, "walletA", 4, 11.40)

	sw := settlement.NewSweeper(zap.NewNop(), &markWonErrStore{BetStore: f.bets}, f.users, f.txs, f.payouts)
	paid := sw.Sweep(ctx)
	assert.Zero(t, paid)

	_, n := f.payouts.sentTo("walletA")
	assert.Equal(t, 1, n)
	require.Len(t, f.txs.Records, 1)
	assert.Equal(t, domain.TxPayout, f.txs.Records[0].Type)
	assert.InDelta(t, 15.40, f.txs.Records[0].Amount, 1e-9)

	// o status fica preso até a transição conseguir rodar
	got, _ := f.bets.Get(ctx, bet.ID)
	assert.Equal(t, domain.BetPayoutFailed, got.Status)

	u, _ := f.users.GetByWallet(ctx, "walletA")
	assert.Zero(t, u.TotalWon)
}

func TestSweep_NothingToDo(t *testing.T) {
	f := newSweeperFixture(t)
	sw := settlement.NewSweeper(zap.NewNop(), f.bets, f.users, f.txs, f.payouts)
	assert.Zero(t, sw.Sweep(context.Background()))
	assert.Empty(t, f.payouts.transfers)
}
