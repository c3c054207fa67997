package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate cria o schema do core se ainda não existir.
// As constraints de unicidade abaixo não são só integridade: são a
// primitiva de concorrência do motor (uma rodada ativa por ativo, uma
// aposta por carteira por rodada, um depósito por assinatura).
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id UUID PRIMARY KEY,
			asset TEXT NOT NULL,
			status TEXT NOT NULL,
			start_price DOUBLE PRECISION NOT NULL,
			start_conf DOUBLE PRECISION NOT NULL DEFAULT 0,
			start_publish_time TIMESTAMPTZ,
			start_source TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMPTZ NOT NULL,
			end_price DOUBLE PRECISION,
			end_conf DOUBLE PRECISION,
			end_publish_time TIMESTAMPTZ,
			end_source TEXT,
			end_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// no máximo uma rodada ativa por ativo, garantido pelo banco
		`CREATE UNIQUE INDEX IF NOT EXISTS rounds_one_active_per_asset
			ON rounds (asset) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS rounds_due_idx ON rounds (status, start_time)`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			wallet_address TEXT NOT NULL,
			total_wagered DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_won DOUBLE PRECISION NOT NULL DEFAULT 0,
			win_streak INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT users_wallet_uniq UNIQUE (wallet_address)
		)`,

		`CREATE TABLE IF NOT EXISTS bets (
			id UUID PRIMARY KEY,
			round_id UUID NOT NULL REFERENCES rounds(id),
			user_id UUID NOT NULL REFERENCES users(id),
			wallet_address TEXT NOT NULL,
			prediction TEXT NOT NULL,
			multiplier INT NOT NULL,
			stake_amount DOUBLE PRECISION NOT NULL,
			potential_win DOUBLE PRECISION NOT NULL,
			actual_win DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			deposit_tx_signature TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT bets_round_wallet_uniq UNIQUE (round_id, wallet_address),
			CONSTRAINT bets_deposit_sig_uniq UNIQUE (deposit_tx_signature)
		)`,
		`CREATE INDEX IF NOT EXISTS bets_status_idx ON bets (status)`,

		// ledger append-only de movimentos on-chain (depósitos e payouts)
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			user_id UUID,
			wallet_address TEXT NOT NULL,
			type TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			tx_signature TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT transactions_sig_uniq UNIQUE (tx_signature)
		)`,
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
