// Package bets registra apostas com idempotência estrita por assinatura
// de depósito.
package bets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/internal/game/rounds"
	"github.com/pricetoss/price-toss-platform/pkg/contracts/events"
)

// Publisher publica o evento bet_placed; o envio é best-effort e nunca
// derruba uma aposta já persistida.
type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// PlaceBetParams é a entrada crua vinda da API.
type PlaceBetParams struct {
	WalletAddress string
	Asset         string
	Prediction    string
	Multiplier    int
	StakeAmount   float64
	DepositTxSig  string
}

// Service é o ledger de apostas: valida, verifica o depósito on-chain,
// resolve a rodada ativa e grava a aposta pendente com seus efeitos
// colaterais (ledger de transações, total apostado do usuário).
type Service struct {
	log      *zap.Logger
	bets     domain.BetStore
	users    domain.UserStore
	txs      domain.TransactionStore
	rounds   *rounds.Manager
	verifier domain.DepositVerifier
	publ     Publisher

	treasury string
	feeRate  float64
	assets   map[string]bool
}

func NewService(
	log *zap.Logger,
	betStore domain.BetStore,
	userStore domain.UserStore,
	txStore domain.TransactionStore,
	roundMgr *rounds.Manager,
	verifier domain.DepositVerifier,
	publ Publisher,
	treasury string,
	feeRate float64,
	assets []string,
) *Service {
	allow := make(map[string]bool, len(assets))
	for _, a := range assets {
		allow[a] = true
	}
	return &Service{
		log:      log,
		bets:     betStore,
		users:    userStore,
		txs:      txStore,
		rounds:   roundMgr,
		verifier: verifier,
		publ:     publ,
		treasury: treasury,
		feeRate:  feeRate,
		assets:   allow,
	}
}

// PlaceBet registra uma aposta. A checagem de idempotência pela assinatura
// de depósito vem antes de qualquer efeito colateral: um retry do cliente
// após soluço de rede recebe a mesma aposta de volta.
func (s *Service) PlaceBet(ctx context.Context, p PlaceBetParams) (*domain.Bet, error) {
	if p.DepositTxSig == "" {
		return nil, fmt.Errorf("%w: deposit signature required", domain.ErrInvalidInput)
	}
	if existing, err := s.bets.FindByDepositSig(ctx, p.DepositTxSig); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := s.validate(p); err != nil {
		return nil, err
	}

	ok, err := s.verifier.VerifyDeposit(ctx, p.DepositTxSig, p.StakeAmount, p.WalletAddress, s.treasury)
	if err != nil {
		return nil, fmt.Errorf("verify deposit: %w", err)
	}
	if !ok {
		return nil, domain.ErrPaymentNotVerified
	}

	user, err := s.users.GetOrCreateByWallet(ctx, p.WalletAddress)
	if err != nil {
		return nil, err
	}

	round, err := s.rounds.GetOrCreateActiveRound(ctx, p.Asset)
	if err != nil {
		return nil, err
	}

	// pré-checagem só pra dar erro limpo; a constraint do banco decide
	if _, err := s.bets.FindByRoundAndWallet(ctx, round.ID, p.WalletAddress); err == nil {
		return nil, domain.ErrDuplicateBet
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	bet := &domain.Bet{
		ID:            uuid.NewString(),
		RoundID:       round.ID,
		UserID:        user.ID,
		WalletAddress: p.WalletAddress,
		Prediction:    domain.Prediction(p.Prediction),
		Multiplier:    p.Multiplier,
		StakeAmount:   p.StakeAmount,
		PotentialWin:  p.StakeAmount * float64(p.Multiplier) * (1 - s.feeRate),
		Status:        domain.BetPending,
		DepositTxSig:  p.DepositTxSig,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.bets.Insert(ctx, bet); err != nil {
		if errors.Is(err, domain.ErrDuplicateDeposit) {
			// corrida com um retry concorrente: devolve a aposta original
			return s.bets.FindByDepositSig(ctx, p.DepositTxSig)
		}
		return nil, err
	}

	if err := s.txs.Insert(ctx, &domain.TransactionRecord{
		UserID:        user.ID,
		WalletAddress: p.WalletAddress,
		Type:          domain.TxDeposit,
		Amount:        p.StakeAmount,
		TxSignature:   p.DepositTxSig,
		Status:        "confirmed",
	}); err != nil && !errors.Is(err, domain.ErrDuplicateTransaction) {
		s.log.Warn("deposit ledger insert", zap.String("bet_id", bet.ID), zap.Error(err))
	}

	if err := s.users.AddWagered(ctx, user.ID, p.StakeAmount); err != nil {
		s.log.Warn("add wagered", zap.String("user_id", user.ID), zap.Error(err))
	}

	if s.publ != nil {
		_ = s.publ.PublishBetPlaced(ctx, events.BetPlaced{
			BetID:         bet.ID,
			RoundID:       round.ID,
			UserID:        user.ID,
			WalletAddress: p.WalletAddress,
			Asset:         p.Asset,
			Prediction:    p.Prediction,
			Multiplier:    p.Multiplier,
			StakeAmount:   p.StakeAmount,
			PotentialWin:  bet.PotentialWin,
			DepositTxSig:  p.DepositTxSig,
		})
	}

	s.log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("round_id", round.ID),
		zap.String("wallet", p.WalletAddress),
		zap.String("prediction", p.Prediction),
		zap.Float64("stake", p.StakeAmount),
		zap.Int("multiplier", p.Multiplier),
	)
	return bet, nil
}

func (s *Service) validate(p PlaceBetParams) error {
	if p.WalletAddress == "" {
		return fmt.Errorf("%w: wallet address required", domain.ErrInvalidInput)
	}
	if !s.assets[p.Asset] {
		return fmt.Errorf("%w: unsupported asset %q", domain.ErrInvalidInput, p.Asset)
	}
	if p.Prediction != string(domain.PredictionUp) && p.Prediction != string(domain.PredictionDown) {
		return fmt.Errorf("%w: prediction must be up or down", domain.ErrInvalidInput)
	}
	if !domain.ValidMultipliers[p.Multiplier] {
		return fmt.Errorf("%w: multiplier must be 1, 2, 5 or 10", domain.ErrInvalidInput)
	}
	if p.StakeAmount <= 0 {
		return fmt.Errorf("%w: stake must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// GetBet resolve uma aposta por id (endpoint de status).
func (s *Service) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	return s.bets.Get(ctx, id)
}
