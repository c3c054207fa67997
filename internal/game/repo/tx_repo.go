package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// TxRepo grava o ledger append-only de movimentos on-chain.
type TxRepo struct{ db *sql.DB }

func NewTxRepo(db *sql.DB) *TxRepo { return &TxRepo{db: db} }

func (p *TxRepo) Insert(ctx context.Context, t *domain.TransactionRecord) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, wallet_address, type, amount, tx_signature, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.UserID, t.WalletAddress, string(t.Type), t.Amount, t.TxSignature, t.Status,
	)
	if uniqueViolation(err, "transactions_sig_uniq") {
		return domain.ErrDuplicateTransaction
	}
	return err
}
