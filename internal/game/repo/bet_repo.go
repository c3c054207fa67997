package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// BetRepo implementa persistência de apostas em Postgres.
type BetRepo struct{ db *sql.DB }

func NewBetRepo(db *sql.DB) *BetRepo { return &BetRepo{db: db} }

const betCols = `id, round_id, user_id, wallet_address, prediction, multiplier,
	stake_amount, potential_win, actual_win, status, deposit_tx_signature, created_at`

func scanBet(row interface{ Scan(...any) error }) (*domain.Bet, error) {
	var (
		b          domain.Bet
		prediction string
		status     string
	)
	err := row.Scan(&b.ID, &b.RoundID, &b.UserID, &b.WalletAddress, &prediction,
		&b.Multiplier, &b.StakeAmount, &b.PotentialWin, &b.ActualWin, &status,
		&b.DepositTxSig, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Prediction = domain.Prediction(prediction)
	b.Status = domain.BetStatus(status)
	return &b, nil
}

func (p *BetRepo) Get(ctx context.Context, id string) (*domain.Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (p *BetRepo) FindByDepositSig(ctx context.Context, sig string) (*domain.Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx,
		`SELECT `+betCols+` FROM bets WHERE deposit_tx_signature=$1`, sig))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (p *BetRepo) FindByRoundAndWallet(ctx context.Context, roundID, wallet string) (*domain.Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx,
		`SELECT `+betCols+` FROM bets WHERE round_id=$1 AND wallet_address=$2`, roundID, wallet))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return b, err
}

// Insert grava a aposta pendente. As duas constraints de unicidade viram os
// sinais Duplicate*: o banco é quem decide a corrida, não a checagem prévia.
func (p *BetRepo) Insert(ctx context.Context, b *domain.Bet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bets (id, round_id, user_id, wallet_address, prediction, multiplier,
			stake_amount, potential_win, status, deposit_tx_signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.RoundID, b.UserID, b.WalletAddress, string(b.Prediction), b.Multiplier,
		b.StakeAmount, b.PotentialWin, string(b.Status), b.DepositTxSig,
	)
	switch {
	case uniqueViolation(err, "bets_round_wallet_uniq"):
		return domain.ErrDuplicateBet
	case uniqueViolation(err, "bets_deposit_sig_uniq"):
		return domain.ErrDuplicateDeposit
	}
	return err
}

func (p *BetRepo) ListByRound(ctx context.Context, roundID string) ([]domain.Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+betCols+` FROM bets WHERE round_id=$1 ORDER BY created_at`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p *BetRepo) ListPayoutFailed(ctx context.Context, limit int) ([]domain.Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+betCols+` FROM bets
		WHERE status='payout_failed'
		ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p *BetRepo) ListPendingRoundIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT round_id FROM bets
		WHERE status='pending' AND created_at < $1
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkWon só transiciona apostas ainda não liquidadas; numa re-execução da
// liquidação as já pagas retornam false e são puladas.
func (p *BetRepo) MarkWon(ctx context.Context, id string, actualWin float64) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status='won', actual_win=$2, updated_at=NOW()
		WHERE id=$1 AND status IN ('pending','payout_failed')`, id, actualWin)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *BetRepo) MarkLost(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status='lost', updated_at=NOW()
		WHERE id=$1 AND status='pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *BetRepo) MarkPayoutFailed(ctx context.Context, id string, actualWin float64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status='payout_failed', actual_win=$2, updated_at=NOW()
		WHERE id=$1 AND status='pending'`, id, actualWin)
	return err
}
