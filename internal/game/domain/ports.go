package domain

import (
	"context"
	"time"
)

// RoundStore persiste rodadas. O UPDATE condicional de status (TryLock,
// Unlock, Finish) é o mecanismo de exclusão mútua entre workers: não há
// lock em memória nem lock manager externo.
type RoundStore interface {
	Get(ctx context.Context, id string) (*Round, error)
	// FindActive retorna a rodada ativa do ativo, ou ErrNotFound.
	FindActive(ctx context.Context, asset string) (*Round, error)
	// Insert grava uma rodada nova; ErrActiveRoundExists quando o índice
	// parcial de unicidade rejeita uma segunda rodada ativa do mesmo ativo.
	Insert(ctx context.Context, r *Round) error
	// FindDue lista rodadas ativas iniciadas antes do instante dado.
	FindDue(ctx context.Context, startedBefore time.Time) ([]Round, error)
	// TryLock tenta active→settling; false se outro worker chegou antes.
	TryLock(ctx context.Context, id string) (bool, error)
	// Unlock desfaz settling→active (rollback antes do ponto sem volta).
	Unlock(ctx context.Context, id string) error
	// Finish grava o snapshot final e marca settling→ended. A partir daqui
	// o desfecho da rodada é imutável.
	Finish(ctx context.Context, id string, end Snapshot, endTime time.Time) error
}

type BetStore interface {
	Get(ctx context.Context, id string) (*Bet, error)
	FindByDepositSig(ctx context.Context, sig string) (*Bet, error)
	FindByRoundAndWallet(ctx context.Context, roundID, wallet string) (*Bet, error)
	// Insert retorna ErrDuplicateBet ou ErrDuplicateDeposit conforme a
	// constraint violada; a pré-checagem da engine existe só pra mensagem
	// limpa, a fonte de verdade é o banco.
	Insert(ctx context.Context, b *Bet) error
	ListByRound(ctx context.Context, roundID string) ([]Bet, error)
	// ListPayoutFailed lista candidatas à varredura de retry de payout.
	ListPayoutFailed(ctx context.Context, limit int) ([]Bet, error)
	// ListPendingRoundIDs lista rodadas distintas que ainda têm apostas
	// pendentes criadas antes do instante dado. É o caminho de volta pra
	// rodadas encerradas cuja liquidação morreu antes dos payouts.
	ListPendingRoundIDs(ctx context.Context, before time.Time, limit int) ([]string, error)
	// MarkWon grava won+actual_win; só transiciona de pending/payout_failed,
	// e devolve false quando a aposta já tinha sido liquidada (idempotência).
	MarkWon(ctx context.Context, id string, actualWin float64) (bool, error)
	// MarkLost só transiciona de pending; false se já liquidada.
	MarkLost(ctx context.Context, id string) (bool, error)
	// MarkPayoutFailed preserva o actual_win calculado pra que o retry não
	// precise refazer a matemática do pool.
	MarkPayoutFailed(ctx context.Context, id string, actualWin float64) error
}

type UserStore interface {
	GetOrCreateByWallet(ctx context.Context, wallet string) (*User, error)
	GetByWallet(ctx context.Context, wallet string) (*User, error)
	AddWagered(ctx context.Context, userID string, amount float64) error
	// RecordWin soma o ganho e incrementa a sequência de vitórias.
	RecordWin(ctx context.Context, userID string, amount float64) error
	ResetStreak(ctx context.Context, userID string) error
}

type TransactionStore interface {
	// Insert é append-only; ErrDuplicateTransaction quando a assinatura
	// já foi registrada (retry idempotente).
	Insert(ctx context.Context, t *TransactionRecord) error
}

// PriceOracle entrega o preço corrente de um ativo. Implementações nunca
// devolvem preço <= 0 sem erro.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (Snapshot, error)
}

// PayoutExecutor envia uma transferência on-chain. Semântica at-least-once:
// quem chama é responsável por deduplicar via TransactionRecord.
type PayoutExecutor interface {
	Transfer(ctx context.Context, toAddress string, amount float64) (signature string, err error)
}

// DepositVerifier confere se o depósito existe, teve sucesso e moveu ao
// menos o valor esperado da carteira do apostador pro tesouro.
type DepositVerifier interface {
	VerifyDeposit(ctx context.Context, txSignature string, expectedAmount float64, expectedSender, expectedRecipient string) (bool, error)
}
