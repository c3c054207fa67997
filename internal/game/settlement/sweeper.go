package settlement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// Sweeper revarre apostas won-mas-não-pagas (payout_failed) fora do caminho
// quente da liquidação e tenta o payout de novo. O valor vem do actual_win
// gravado na falha; a matemática do pool nunca é refeita aqui.
type Sweeper struct {
	log     *zap.Logger
	bets    domain.BetStore
	users   domain.UserStore
	txs     domain.TransactionStore
	payouts domain.PayoutExecutor

	payoutTimeout time.Duration
	batchSize     int
}

func NewSweeper(
	log *zap.Logger,
	betStore domain.BetStore,
	userStore domain.UserStore,
	txStore domain.TransactionStore,
	payouts domain.PayoutExecutor,
) *Sweeper {
	return &Sweeper{
		log:           log,
		bets:          betStore,
		users:         userStore,
		txs:           txStore,
		payouts:       payouts,
		payoutTimeout: 15 * time.Second,
		batchSize:     50,
	}
}

// Sweep tenta pagar um lote de payouts falhos. Retorna quantos foram pagos.
func (s *Sweeper) Sweep(ctx context.Context) int {
	unpaid, err := s.bets.ListPayoutFailed(ctx, s.batchSize)
	if err != nil {
		s.log.Error("list payout_failed", zap.Error(err))
		return 0
	}

	paid := 0
	for i := range unpaid {
		if s.retryOne(ctx, &unpaid[i]) {
			paid++
		}
	}
	if paid > 0 || len(unpaid) > 0 {
		s.log.Info("payout sweep finished",
			zap.Int("candidates", len(unpaid)),
			zap.Int("paid", paid),
		)
	}
	return paid
}

func (s *Sweeper) retryOne(ctx context.Context, bet *domain.Bet) bool {
	amount := bet.StakeAmount + bet.ActualWin

	pctx, cancel := context.WithTimeout(ctx, s.payoutTimeout)
	sig, err := s.payouts.Transfer(pctx, bet.WalletAddress, amount)
	cancel()
	if err != nil {
		s.log.Warn("payout retry failed",
			zap.String("bet_id", bet.ID),
			zap.String("wallet", bet.WalletAddress),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return false
	}

	// o dinheiro já saiu: o ledger registra antes de qualquer outra coisa,
	// mesmo que a transição de status abaixo falhe
	if err := s.txs.Insert(ctx, &domain.TransactionRecord{
		UserID:        bet.UserID,
		WalletAddress: bet.WalletAddress,
		Type:          domain.TxPayout,
		Amount:        amount,
		TxSignature:   sig,
		Status:        "confirmed",
	}); err != nil && !errors.Is(err, domain.ErrDuplicateTransaction) {
		s.log.Warn("payout ledger insert", zap.String("bet_id", bet.ID), zap.Error(err))
	}

	applied, err := s.bets.MarkWon(ctx, bet.ID, bet.ActualWin)
	if err != nil {
		s.log.Error("mark won on retry", zap.String("bet_id", bet.ID), zap.Error(err))
		return false
	}

	if applied {
		if err := s.users.RecordWin(ctx, bet.UserID, bet.ActualWin); err != nil {
			s.log.Warn("record win", zap.String("user_id", bet.UserID), zap.Error(err))
		}
	}
	return true
}
