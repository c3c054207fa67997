// Package settlement dirige a máquina de estados da rodada e o rateio
// pari-mutuel.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/pkg/contracts/events"
)

// Publisher publica os eventos de liquidação; sempre best-effort.
type Publisher interface {
	PublishRoundSettled(ctx context.Context, e events.RoundSettled) error
	PublishPayoutFailed(ctx context.Context, e events.PayoutFailed) error
}

// PayoutError descreve a falha de payout de um vencedor individual.
// Nunca derruba os payouts dos demais.
type PayoutError struct {
	BetID         string
	WalletAddress string
	Err           string
}

// Result é o desfecho estruturado da liquidação de uma rodada.
type Result struct {
	RoundID     string
	Asset       string
	Skipped     bool // outro worker segurava o lock
	Direction   domain.Prediction
	StartPrice  float64
	EndPrice    float64
	Winners     int
	Losers      int
	PayoutPool  float64
	PlatformFee float64
	PayoutFails []PayoutError
}

// Engine liquida rodadas. Toda a exclusão mútua entre workers vem do
// UPDATE condicional de status no banco; a engine em si não guarda estado.
type Engine struct {
	log     *zap.Logger
	rounds  domain.RoundStore
	bets    domain.BetStore
	users   domain.UserStore
	txs     domain.TransactionStore
	oracle  domain.PriceOracle
	payouts domain.PayoutExecutor
	publ    Publisher

	roundDuration time.Duration
	feeRate       float64
	oracleTimeout time.Duration
	payoutTimeout time.Duration
}

type Option func(*Engine)

func WithTimeouts(oracle, payout time.Duration) Option {
	return func(e *Engine) {
		e.oracleTimeout = oracle
		e.payoutTimeout = payout
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publ = p }
}

func NewEngine(
	log *zap.Logger,
	roundStore domain.RoundStore,
	betStore domain.BetStore,
	userStore domain.UserStore,
	txStore domain.TransactionStore,
	oracle domain.PriceOracle,
	payouts domain.PayoutExecutor,
	roundDuration time.Duration,
	feeRate float64,
	opts ...Option,
) *Engine {
	e := &Engine{
		log:           log,
		rounds:        roundStore,
		bets:          betStore,
		users:         userStore,
		txs:           txStore,
		oracle:        oracle,
		payouts:       payouts,
		roundDuration: roundDuration,
		feeRate:       feeRate,
		oracleTimeout: 5 * time.Second,
		payoutTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// strandedBatch limita quantas rodadas órfãs são retomadas por tick.
const strandedBatch = 20

// SettleDue liquida todas as rodadas cuja janela venceu e retoma as já
// encerradas que ficaram com apostas pendentes. Cada rodada é independente:
// o erro de uma não interrompe as demais.
func (e *Engine) SettleDue(ctx context.Context) []Result {
	cutoff := time.Now().UTC().Add(-e.roundDuration)
	due, err := e.rounds.FindDue(ctx, cutoff)
	if err != nil {
		e.log.Error("find due rounds", zap.Error(err))
		return nil
	}

	results := make([]Result, 0, len(due))
	for i := range due {
		res, err := e.Settle(ctx, &due[i])
		if err != nil {
			e.log.Error("settle round",
				zap.String("round_id", due[i].ID),
				zap.String("asset", due[i].Asset),
				zap.Error(err),
			)
		}
		results = append(results, res)
	}
	return append(results, e.resumeStranded(ctx, cutoff)...)
}

// resumeStranded reencontra rodadas ended que ainda têm apostas pendentes:
// uma liquidação que morreu entre o snapshot final e os payouts deixa os
// vencedores presos em pending, invisíveis tanto pro scan de vencidas
// (status active) quanto pra varredura de retry (status payout_failed).
func (e *Engine) resumeStranded(ctx context.Context, before time.Time) []Result {
	ids, err := e.bets.ListPendingRoundIDs(ctx, before, strandedBatch)
	if err != nil {
		e.log.Error("list stranded rounds", zap.Error(err))
		return nil
	}

	var results []Result
	for _, id := range ids {
		round, err := e.rounds.Get(ctx, id)
		if err != nil {
			e.log.Error("load stranded round", zap.String("round_id", id), zap.Error(err))
			continue
		}
		// rodada ainda viva: o scan de vencidas cuida dela
		if round.Status != domain.RoundEnded {
			continue
		}

		e.log.Warn("resuming ended round with pending bets", zap.String("round_id", id))
		res, err := e.Settle(ctx, round)
		if err != nil {
			e.log.Error("resume stranded round", zap.String("round_id", id), zap.Error(err))
		}
		results = append(results, res)
	}
	return results
}

// Settle executa a máquina de estados de uma rodada:
//
//	active --lock--> settling --snapshot final--> ended --payouts--> (terminal)
//
// Antes do snapshot final persistido, qualquer falha faz rollback
// settling→active e o próximo tick tenta de novo. Depois dele o desfecho é
// fixo e a chamada é re-executável: apostas já liquidadas são puladas.
func (e *Engine) Settle(ctx context.Context, round *domain.Round) (Result, error) {
	res := Result{RoundID: round.ID, Asset: round.Asset, StartPrice: round.Start.Price}

	// retomada de uma rodada já encerrada com payouts pendentes
	if round.Status == domain.RoundEnded {
		return e.resume(ctx, round)
	}

	locked, err := e.rounds.TryLock(ctx, round.ID)
	if err != nil {
		return res, err
	}
	if !locked {
		res.Skipped = true
		return res, nil
	}

	octx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	snap, err := e.oracle.GetPrice(octx, round.Asset)
	cancel()
	if err != nil || snap.Price <= 0 {
		// ponto sem volta ainda não cruzado: devolve a rodada pra fila
		if uerr := e.rounds.Unlock(ctx, round.ID); uerr != nil {
			e.log.Error("rollback to active", zap.String("round_id", round.ID), zap.Error(uerr))
		}
		if err == nil {
			err = fmt.Errorf("price %v", snap.Price)
		}
		return res, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}

	endTime := time.Now().UTC()
	if err := e.rounds.Finish(ctx, round.ID, snap, endTime); err != nil {
		if uerr := e.rounds.Unlock(ctx, round.ID); uerr != nil {
			e.log.Error("rollback to active", zap.String("round_id", round.ID), zap.Error(uerr))
		}
		return res, fmt.Errorf("persist end snapshot: %w", err)
	}

	// daqui em diante o desfecho é imutável
	round.End = &snap
	round.EndTime = &endTime
	round.Status = domain.RoundEnded

	return e.apply(ctx, round)
}

// resume re-liquida uma rodada ended usando o snapshot final já gravado.
// Só toca apostas ainda pending/payout_failed; nada é recalculado de novo
// pros já pagos.
func (e *Engine) resume(ctx context.Context, round *domain.Round) (Result, error) {
	if round.End == nil {
		return Result{RoundID: round.ID, Asset: round.Asset},
			fmt.Errorf("round %s ended without end snapshot", round.ID)
	}
	return e.apply(ctx, round)
}

func (e *Engine) apply(ctx context.Context, round *domain.Round) (Result, error) {
	res := Result{
		RoundID:    round.ID,
		Asset:      round.Asset,
		StartPrice: round.Start.Price,
		EndPrice:   round.End.Price,
	}

	direction := domain.PredictionDown
	if round.End.Price > round.Start.Price {
		direction = domain.PredictionUp
	}
	res.Direction = direction

	allBets, err := e.bets.ListByRound(ctx, round.ID)
	if err != nil {
		return res, fmt.Errorf("load bets: %w", err)
	}
	if len(allBets) == 0 {
		e.log.Info("round settled with no bets", zap.String("round_id", round.ID))
		return res, nil
	}

	var winners, losers []domain.Bet
	for _, b := range allBets {
		if b.Prediction == direction {
			winners = append(winners, b)
		} else {
			losers = append(losers, b)
		}
	}
	res.Winners = len(winners)
	res.Losers = len(losers)

	var totalLoserStakes, totalWinnerWeight float64
	for _, b := range losers {
		totalLoserStakes += b.StakeAmount
	}
	for _, b := range winners {
		totalWinnerWeight += b.Weight()
	}

	platformFee := totalLoserStakes * e.feeRate
	payoutPool := totalLoserStakes - platformFee
	res.PlatformFee = platformFee
	res.PayoutPool = payoutPool

	for _, w := range winners {
		// re-execução: já paga, segue adiante
		if w.Status == domain.BetWon || w.Status == domain.BetLost {
			continue
		}

		// sem perdedores não há pool; o vencedor recebe só a stake de volta
		var winShare float64
		if totalWinnerWeight > 0 {
			winShare = (w.Weight() / totalWinnerWeight) * payoutPool
		}
		totalPayout := winShare + w.StakeAmount

		if err := e.payWinner(ctx, round, &w, winShare, totalPayout); err != nil {
			res.PayoutFails = append(res.PayoutFails, PayoutError{
				BetID:         w.ID,
				WalletAddress: w.WalletAddress,
				Err:           err.Error(),
			})
		}
	}

	for _, l := range losers {
		applied, err := e.bets.MarkLost(ctx, l.ID)
		if err != nil {
			e.log.Error("mark lost", zap.String("bet_id", l.ID), zap.Error(err))
			continue
		}
		if !applied {
			continue // já marcada numa tentativa anterior
		}
		if err := e.users.ResetStreak(ctx, l.UserID); err != nil {
			e.log.Warn("reset streak", zap.String("user_id", l.UserID), zap.Error(err))
		}
	}

	if e.publ != nil {
		_ = e.publ.PublishRoundSettled(ctx, events.RoundSettled{
			RoundID:     round.ID,
			Asset:       round.Asset,
			Direction:   string(direction),
			StartPrice:  round.Start.Price,
			EndPrice:    round.End.Price,
			Winners:     res.Winners,
			Losers:      res.Losers,
			PayoutPool:  payoutPool,
			PlatformFee: platformFee,
			PayoutFails: len(res.PayoutFails),
			Ts:          time.Now().UTC(),
		})
	}

	e.log.Info("round settled",
		zap.String("round_id", round.ID),
		zap.String("asset", round.Asset),
		zap.String("direction", string(direction)),
		zap.Int("winners", res.Winners),
		zap.Int("losers", res.Losers),
		zap.Float64("payout_pool", payoutPool),
		zap.Float64("platform_fee", platformFee),
		zap.Int("payout_fails", len(res.PayoutFails)),
	)
	return res, nil
}

// payWinner é a subtarefa idempotente de um vencedor: transfere
// stake+ganho, marca a aposta e atualiza stats. Falha aqui marca
// payout_failed com o actual_win preservado pra varredura de retry.
func (e *Engine) payWinner(ctx context.Context, round *domain.Round, bet *domain.Bet, winShare, totalPayout float64) error {
	pctx, cancel := context.WithTimeout(ctx, e.payoutTimeout)
	sig, err := e.payouts.Transfer(pctx, bet.WalletAddress, totalPayout)
	cancel()
	if err != nil {
		e.log.Error("payout failed",
			zap.String("bet_id", bet.ID),
			zap.String("wallet", bet.WalletAddress),
			zap.Float64("amount", totalPayout),
			zap.Error(err),
		)
		if merr := e.bets.MarkPayoutFailed(ctx, bet.ID, winShare); merr != nil {
			e.log.Error("mark payout_failed", zap.String("bet_id", bet.ID), zap.Error(merr))
		}
		if e.publ != nil {
			_ = e.publ.PublishPayoutFailed(ctx, events.PayoutFailed{
				BetID:         bet.ID,
				RoundID:       round.ID,
				WalletAddress: bet.WalletAddress,
				Amount:        totalPayout,
				Reason:        err.Error(),
				Ts:            time.Now().UTC(),
			})
		}
		return err
	}

	applied, err := e.bets.MarkWon(ctx, bet.ID, winShare)
	if err != nil {
		return fmt.Errorf("mark won: %w", err)
	}
	if !applied {
		// outra execução liquidou entre o load e o mark; o payout extra já
		// saiu on-chain e fica registrado no ledger pra auditoria
		e.log.Warn("bet already settled when marking won", zap.String("bet_id", bet.ID))
	}

	if err := e.txs.Insert(ctx, &domain.TransactionRecord{
		UserID:        bet.UserID,
		WalletAddress: bet.WalletAddress,
		Type:          domain.TxPayout,
		Amount:        totalPayout,
		TxSignature:   sig,
		Status:        "confirmed",
	}); err != nil && !errors.Is(err, domain.ErrDuplicateTransaction) {
		e.log.Warn("payout ledger insert", zap.String("bet_id", bet.ID), zap.Error(err))
	}

	if applied {
		if err := e.users.RecordWin(ctx, bet.UserID, winShare); err != nil {
			e.log.Warn("record win", zap.String("user_id", bet.UserID), zap.Error(err))
		}
	}
	return nil
}
