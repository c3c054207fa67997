// Package rounds mantém o ciclo de vida da rodada ativa de cada ativo.
package rounds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// Manager cria e resolve a rodada ativa por ativo. A invariante de "no
// máximo uma ativa por ativo" é sustentada pelo banco, não por lock de
// processo: dois primeiros apostadores concorrentes disputam o insert e o
// perdedor rebusca a rodada vencedora.
type Manager struct {
	log           *zap.Logger
	rounds        domain.RoundStore
	oracle        domain.PriceOracle
	oracleTimeout time.Duration
}

func NewManager(log *zap.Logger, rounds domain.RoundStore, oracle domain.PriceOracle, oracleTimeout time.Duration) *Manager {
	if oracleTimeout <= 0 {
		oracleTimeout = 5 * time.Second
	}
	return &Manager{log: log, rounds: rounds, oracle: oracle, oracleTimeout: oracleTimeout}
}

// GetOrCreateActiveRound devolve a rodada ativa do ativo, criando uma nova
// com snapshot do oráculo quando não existe. Falha do oráculo vira
// ErrRoundUnavailable sem deixar rodada parcial pra trás.
func (m *Manager) GetOrCreateActiveRound(ctx context.Context, asset string) (*domain.Round, error) {
	r, err := m.rounds.FindActive(ctx, asset)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	octx, cancel := context.WithTimeout(ctx, m.oracleTimeout)
	defer cancel()
	snap, err := m.oracle.GetPrice(octx, asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRoundUnavailable, err)
	}
	if snap.Price <= 0 {
		return nil, fmt.Errorf("%w: oracle returned price %v", domain.ErrRoundUnavailable, snap.Price)
	}

	now := time.Now().UTC()
	r = &domain.Round{
		ID:        uuid.NewString(),
		Asset:     asset,
		Status:    domain.RoundActive,
		Start:     snap,
		StartTime: now,
	}

	err = m.rounds.Insert(ctx, r)
	if errors.Is(err, domain.ErrActiveRoundExists) {
		// corrida perdida: alguém criou a rodada primeiro
		return m.rounds.FindActive(ctx, asset)
	}
	if err != nil {
		return nil, err
	}

	m.log.Info("round created",
		zap.String("round_id", r.ID),
		zap.String("asset", asset),
		zap.Float64("start_price", snap.Price),
		zap.String("price_source", snap.Source),
	)
	return r, nil
}
