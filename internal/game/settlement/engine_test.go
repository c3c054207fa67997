package settlement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/internal/game/repo/memory"
	"github.com/pricetoss/price-toss-platform/internal/game/settlement"
)

type stubOracle struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (o *stubOracle) GetPrice(_ context.Context, _ string) (domain.Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.Snapshot{}, o.err
	}
	return domain.Snapshot{Price: o.price, Source: "binance", PublishTime: time.Now()}, nil
}

type transfer struct {
	wallet string
	amount float64
}

type stubPayouts struct {
	mu        sync.Mutex
	transfers []transfer
	failFor   map[string]bool
}

func (p *stubPayouts) Transfer(_ context.Context, wallet string, amount float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[wallet] {
		return "", errors.New("rpc timeout")
	}
	p.transfers = append(p.transfers, transfer{wallet: wallet, amount: amount})
	return fmt.Sprintf("PAY-%d", len(p.transfers)), nil
}

func (p *stubPayouts) sentTo(wallet string) (float64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total float64
	n := 0
	for _, t := range p.transfers {
		if t.wallet == wallet {
			total += t.amount
			n++
		}
	}
	return total, n
}

type fixture struct {
	engine  *settlement.Engine
	rounds  *memory.RoundStore
	bets    *memory.BetStore
	users   *memory.UserStore
	txs     *memory.TxStore
	oracle  *stubOracle
	payouts *stubPayouts
}

func newFixture(t *testing.T, endPrice float64) *fixture {
	t.Helper()
	f := &fixture{
		rounds:  memory.NewRoundStore(),
		bets:    memory.NewBetStore(),
		users:   memory.NewUserStore(),
		txs:     memory.NewTxStore(),
		oracle:  &stubOracle{price: endPrice},
		payouts: &stubPayouts{failFor: map[string]bool{}},
	}
	f.engine = settlement.NewEngine(
		zap.NewNop(), f.rounds, f.bets, f.users, f.txs,
		f.oracle, f.payouts, time.Minute, 0.05,
	)
	return f
}

func (f *fixture) addRound(t *testing.T, startPrice float64) *domain.Round {
	t.Helper()
	r := &domain.Round{
		ID:        uuid.NewString(),
		Asset:     "BTC",
		Status:    domain.RoundActive,
		Start:     domain.Snapshot{Price: startPrice, Source: "binance", PublishTime: time.Now()},
		StartTime: time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, f.rounds.Insert(context.Background(), r))
	return r
}

func (f *fixture) addBet(t *testing.T, roundID, wallet string, pred domain.Prediction, stake float64, mult int) *domain.Bet {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.GetOrCreateByWallet(ctx, wallet)
	require.NoError(t, err)
	b := &domain.Bet{
		ID:            uuid.NewString(),
		RoundID:       roundID,
		UserID:        u.ID,
		WalletAddress: wallet,
		Prediction:    pred,
		Multiplier:    mult,
		StakeAmount:   stake,
		PotentialWin:  stake * float64(mult) * 0.95,
		Status:        domain.BetPending,
		DepositTxSig:  "dep-" + wallet,
		CreatedAt:     time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, f.bets.Insert(ctx, b))
	return b
}

// Rateio pari-mutuel: perdedores 10 + 5 = 15, fee 0.75, pool 14.25.
// Vencedores com pesos 8 (4x2) e 2 (2x1) levam 11.40 e 2.85 do pool,
// mais a stake de volta.
func TestSettle_ParimutuelDistribution(t *testing.T) {
	f := newFixture(t, 110) // sobe: up vence
	ctx := context.Background()
	round := f.addRound(t, 100)

	w1 := f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 2)
	w2 := f.addBet(t, round.ID, "winner2", domain.PredictionUp, 2, 1)
	l1 := f.addBet(t, round.ID, "loser1", domain.PredictionDown, 10, 1)
	l2 := f.addBet(t, round.ID, "loser2", domain.PredictionDown, 5, 2)

	res, err := f.engine.Settle(ctx, round)
	require.NoError(t, err)

	assert.Equal(t, domain.PredictionUp, res.Direction)
	assert.Equal(t, 2, res.Winners)
	assert.Equal(t, 2, res.Losers)
	assert.InDelta(t, 0.75, res.PlatformFee, 1e-9)
	assert.InDelta(t, 14.25, res.PayoutPool, 1e-9)
	assert.Empty(t, res.PayoutFails)

	got1, _ := f.bets.Get(ctx, w1.ID)
	got2, _ := f.bets.Get(ctx, w2.ID)
	assert.Equal(t, domain.BetWon, got1.Status)
	assert.Equal(t, domain.BetWon, got2.Status)
	assert.InDelta(t, 11.40, got1.ActualWin, 1e-9)
	assert.InDelta(t, 2.85, got2.ActualWin, 1e-9)

	sent1, _ := f.payouts.sentTo("winner1")
	sent2, _ := f.payouts.sentTo("winner2")
	assert.InDelta(t, 15.40, sent1, 1e-9) // stake 4 + 11.40
	assert.InDelta(t, 4.85, sent2, 1e-9)  // stake 2 + 2.85

	gotL1, _ := f.bets.Get(ctx, l1.ID)
	gotL2, _ := f.bets.Get(ctx, l2.ID)
	assert.Equal(t, domain.BetLost, gotL1.Status)
	assert.Equal(t, domain.BetLost, gotL2.Status)

	// conservação: a soma dos ganhos líquidos nunca excede o pool
	assert.LessOrEqual(t, got1.ActualWin+got2.ActualWin, 15*0.95+1e-9)

	// stats: vencedores ganham streak, perdedores zeram
	u1, _ := f.users.GetByWallet(ctx, "winner1")
	assert.Equal(t, 1, u1.WinStreak)
	assert.InDelta(t, 11.40, u1.TotalWon, 1e-9)
	ul, _ := f.users.GetByWallet(ctx, "loser1")
	assert.Equal(t, 0, ul.WinStreak)

	// ledger: um payout por vencedor
	payoutRecords := 0
	for _, rec := range f.txs.Records {
		if rec.Type == domain.TxPayout {
			payoutRecords++
		}
	}
	assert.Equal(t, 2, payoutRecords)

	got, _ := f.rounds.Get(ctx, round.ID)
	assert.Equal(t, domain.RoundEnded, got.Status)
	require.NotNil(t, got.End)
	assert.Equal(t, 110.0, got.End.Price)
}

// Preço final igual ao inicial não conta como alta.
func TestSettle_TieGoesDown(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	round := f.addRound(t, 100)

	down := f.addBet(t, round.ID, "downer", domain.PredictionDown, 3, 1)
	up := f.addBet(t, round.ID, "upper", domain.PredictionUp, 3, 1)

	res, err := f.engine.Settle(ctx, round)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionDown, res.Direction)

	gotDown, _ := f.bets.Get(ctx, down.ID)
	gotUp, _ := f.bets.Get(ctx, up.ID)
	assert.Equal(t, domain.BetWon, gotDown.Status)
	assert.Equal(t, domain.BetLost, gotUp.Status)
}

// Dois workers disputando a mesma rodada: só um liquida, o outro pula.
func TestSettle_LockExclusivity(t *testing.T) {
	f := newFixture(t, 110)
	round := f.addRound(t, 100)
	f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 2)
	f.addBet(t, round.ID, "loser1", domain.PredictionDown, 10, 1)

	var wg sync.WaitGroup
	results := make([]settlement.Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cp := *round
			results[i], errs[i] = f.engine.Settle(context.Background(), &cp)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	settled, skipped := 0, 0
	for _, r := range results {
		if r.Skipped {
			skipped++
		} else {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, skipped)

	// o payout saiu exatamente uma vez
	total, n := f.payouts.sentTo("winner1")
	assert.Equal(t, 1, n)
	assert.InDelta(t, 4+9.5, total, 1e-9) // stake 4 + pool 10*0.95
}

// Oráculo fora do ar antes do snapshot final: rollback pra active,
// apostas intactas, próximo tick tenta de novo.
func TestSettle_OracleFailureRollsBack(t *testing.T) {
	f := newFixture(t, 0)
	f.oracle.err = errors.New("hermes 502")
	ctx := context.Background()
	round := f.addRound(t, 100)
	bet := f.addBet(t, round.ID, "walletA", domain.PredictionUp, 1, 1)

	_, err := f.engine.Settle(ctx, round)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)

	got, _ := f.rounds.Get(ctx, round.ID)
	assert.Equal(t, domain.RoundActive, got.Status)
	assert.Nil(t, got.End)

	gotBet, _ := f.bets.Get(ctx, bet.ID)
	assert.Equal(t, domain.BetPending, gotBet.Status)
	assert.Empty(t, f.payouts.transfers)

	// oráculo volta: a mesma rodada liquida normalmente
	f.oracle.mu.Lock()
	f.oracle.err = nil
	f.oracle.price = 120
	f.oracle.mu.Unlock()

	fresh, _ := f.rounds.Get(ctx, round.ID)
	res, err := f.engine.Settle(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionUp, res.Direction)
}

// Preço não positivo do oráculo é tratado como indisponibilidade.
func TestSettle_RejectsNonPositiveEndPrice(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	round := f.addRound(t, 100)

	_, err := f.engine.Settle(ctx, round)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)

	got, _ := f.rounds.Get(ctx, round.ID)
	assert.Equal(t, domain.RoundActive, got.Status)
}

func TestSettle_EmptyRound(t *testing.T) {
	f := newFixture(t, 90)
	ctx := context.Background()
	round := f.addRound(t, 100)

	res, err := f.engine.Settle(ctx, round)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionDown, res.Direction)
	assert.Zero(t, res.Winners)
	assert.Zero(t, res.Losers)

	got, _ := f.rounds.Get(ctx, round.ID)
	assert.Equal(t, domain.RoundEnded, got.Status)
}

// Rodada só de vencedores: não há pool nem fee, cada um recebe a
// própria stake de volta.
func TestSettle_NoLosersStakeBack(t *testing.T) {
	f := newFixture(t, 110)
	ctx := context.Background()
	round := f.addRound(t, 100)
	w := f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 10)

	res, err := f.engine.Settle(ctx, round)
	require.NoError(t, err)
	assert.Zero(t, res.PlatformFee)
	assert.Zero(t, res.PayoutPool)

	got, _ := f.bets.Get(ctx, w.ID)
	assert.Equal(t, domain.BetWon, got.Status)
	assert.Zero(t, got.ActualWin)

	sent, _ := f.payouts.sentTo("winner1")
	assert.InDelta(t, 4, sent, 1e-9)
}

// Falha de payout de um vencedor não contamina os demais e preserva o
// actual_win pra varredura de retry.
func TestSettle_PayoutFailureIsolated(t *testing.T) {
	f := newFixture(t, 110)
	f.payouts.failFor["winner1"] = true
	ctx := context.Background()
	round := f.addRound(t, 100)

	w1 := f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 2)
	w2 := f.addBet(t, round.ID, "winner2", domain.PredictionUp, 2, 1)
	f.addBet(t, round.ID, "loser1", domain.PredictionDown, 10, 1)
	f.addBet(t, round.ID, "loser2", domain.PredictionDown, 5, 2)

	res, err := f.engine.Settle(ctx, round)
	require.NoError(t, err)
	require.Len(t, res.PayoutFails, 1)
	assert.Equal(t, w1.ID, res.PayoutFails[0].BetID)

	got1, _ := f.bets.Get(ctx, w1.ID)
	assert.Equal(t, domain.BetPayoutFailed, got1.Status)
	assert.InDelta(t, 11.40, got1.ActualWin, 1e-9)

	got2, _ := f.bets.Get(ctx, w2.ID)
	assert.Equal(t, domain.BetWon, got2.Status)
	sent2, _ := f.payouts.sentTo("winner2")
	assert.InDelta(t, 4.85, sent2, 1e-9)

	// a falha não quebra a imutabilidade do desfecho
	got, _ := f.rounds.Get(ctx, round.ID)
	assert.Equal(t, domain.RoundEnded, got.Status)
}

// Re-liquidar uma rodada ended (crash entre snapshot e payouts) paga só
// quem ainda está pendente; quem já recebeu não recebe de novo.
func TestSettle_ResumeEndedRound(t *testing.T) {
	f := newFixture(t, 110)
	f.payouts.failFor["winner1"] = true
	ctx := context.Background()
	round := f.addRound(t, 100)

	w1 := f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 2)
	w2 := f.addBet(t, round.ID, "winner2", domain.PredictionUp, 2, 1)
	f.addBet(t, round.ID, "loser1", domain.PredictionDown, 10, 1)
	f.addBet(t, round.ID, "loser2", domain.PredictionDown, 5, 2)

	_, err := f.engine.Settle(ctx, round)
	require.NoError(t, err)

	_, n2 := f.payouts.sentTo("winner2")
	require.Equal(t, 1, n2)

	// chain volta; segunda passada sobre a rodada já ended
	f.payouts.mu.Lock()
	f.payouts.failFor["winner1"] = false
	f.payouts.mu.Unlock()

	ended, _ := f.rounds.Get(ctx, round.ID)
	res, err := f.engine.Settle(ctx, ended)
	require.NoError(t, err)
	assert.Empty(t, res.PayoutFails)

	// winner1 pago agora, winner2 não pago em dobro
	sent1, n1 := f.payouts.sentTo("winner1")
	assert.Equal(t, 1, n1)
	assert.InDelta(t, 15.40, sent1, 1e-9)
	_, n2 = f.payouts.sentTo("winner2")
	assert.Equal(t, 1, n2)

	got1, _ := f.bets.Get(ctx, w1.ID)
	got2, _ := f.bets.Get(ctx, w2.ID)
	assert.Equal(t, domain.BetWon, got1.Status)
	assert.Equal(t, domain.BetWon, got2.Status)
}

// Worker que morre entre o snapshot final e os payouts deixa a rodada
// ended com apostas ainda pendentes. O tick seguinte tem que reencontrá-la
// sozinho: o scan de vencidas só vê rodadas active e a varredura de retry
// só vê payout_failed.
func TestSettleDue_ResumesEndedRoundWithPendingBets(t *testing.T) {
	f := newFixture(t, 110)
	ctx := context.Background()
	round := f.addRound(t, 100)
	w := f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 2)
	l := f.addBet(t, round.ID, "loser1", domain.PredictionDown, 10, 1)

	// meia liquidação: lock e snapshot final persistidos, processo morre
	locked, err := f.rounds.TryLock(ctx, round.ID)
	require.NoError(t, err)
	require.True(t, locked)
	require.NoError(t, f.rounds.Finish(ctx, round.ID,
		domain.Snapshot{Price: 110, Source: "binance", PublishTime: time.Now()}, time.Now()))

	results := f.engine.SettleDue(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, round.ID, results[0].RoundID)
	assert.Equal(t, domain.PredictionUp, results[0].Direction)

	gotW, _ := f.bets.Get(ctx, w.ID)
	assert.Equal(t, domain.BetWon, gotW.Status)
	assert.InDelta(t, 9.5, gotW.ActualWin, 1e-9) // pool 10*0.95, peso único

	sent, n := f.payouts.sentTo("winner1")
	assert.Equal(t, 1, n)
	assert.InDelta(t, 13.5, sent, 1e-9) // stake 4 + 9.5

	gotL, _ := f.bets.Get(ctx, l.ID)
	assert.Equal(t, domain.BetLost, gotL.Status)

	// próximo tick: nada pendente, ninguém é pago de novo
	assert.Empty(t, f.engine.SettleDue(ctx))
	_, n = f.payouts.sentTo("winner1")
	assert.Equal(t, 1, n)
}

// Rodada viva com apostas pendentes não entra pela porta da retomada;
// ela é assunto do scan de vencidas.
func TestSettleDue_DoesNotResumeLiveRounds(t *testing.T) {
	f := newFixture(t, 110)
	ctx := context.Background()
	round := f.addRound(t, 100)
	f.addBet(t, round.ID, "winner1", domain.PredictionUp, 4, 2)

	locked, err := f.rounds.TryLock(ctx, round.ID)
	require.NoError(t, err)
	require.True(t, locked)

	// settling: outro worker está no meio da liquidação
	results := f.engine.SettleDue(ctx)
	assert.Empty(t, results)
	assert.Empty(t, f.payouts.transfers)
}

// SettleDue só pega rodadas cuja janela venceu.
func TestSettleDue_RespectsWindow(t *testing.T) {
	f := newFixture(t, 110)
	ctx := context.Background()

	expired := f.addRound(t, 100)

	// rodada recém-aberta de outro ativo fica de fora
	fresh := &domain.Round{
		ID:        uuid.NewString(),
		Asset:     "SOL",
		Status:    domain.RoundActive,
		Start:     domain.Snapshot{Price: 50, Source: "binance", PublishTime: time.Now()},
		StartTime: time.Now(),
	}
	require.NoError(t, f.rounds.Insert(ctx, fresh))

	results := f.engine.SettleDue(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, expired.ID, results[0].RoundID)

	gotFresh, _ := f.rounds.Get(ctx, fresh.ID)
	assert.Equal(t, domain.RoundActive, gotFresh.Status)
}
