package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// UserRepo implementa o ledger de estatísticas por carteira.
// Todas as mutações são incrementais (read-then-write no próprio UPDATE),
// nunca agregados recalculados.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, wallet_address, total_wagered, total_won, win_streak, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.WalletAddress, &u.TotalWagered, &u.TotalWon, &u.WinStreak, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *UserRepo) GetByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE wallet_address=$1`, wallet))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return u, err
}

// GetOrCreateByWallet cria a linha do usuário no primeiro contato.
// A corrida entre dois primeiros acessos é resolvida pela constraint de
// unicidade da carteira: quem perde o insert rebusca a linha vencedora.
func (p *UserRepo) GetOrCreateByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	u, err := p.GetByWallet(ctx, wallet)
	if err == nil {
		return u, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}

	id := uuid.NewString()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO users (id, wallet_address) VALUES ($1,$2)`, id, wallet)
	if uniqueViolation(err, "users_wallet_uniq") {
		return p.GetByWallet(ctx, wallet)
	}
	if err != nil {
		return nil, err
	}
	return p.GetByWallet(ctx, wallet)
}

func (p *UserRepo) AddWagered(ctx context.Context, userID string, amount float64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET total_wagered = total_wagered + $2 WHERE id=$1`, userID, amount)
	return err
}

func (p *UserRepo) RecordWin(ctx context.Context, userID string, amount float64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET total_won = total_won + $2, win_streak = win_streak + 1 WHERE id=$1`,
		userID, amount)
	return err
}

func (p *UserRepo) ResetStreak(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET win_streak = 0 WHERE id=$1`, userID)
	return err
}
