package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

// RoundRepo implementa persistência de rodadas em Postgres.
type RoundRepo struct{ db *sql.DB }

func NewRoundRepo(db *sql.DB) *RoundRepo { return &RoundRepo{db: db} }

const roundCols = `id, asset, status, start_price, start_conf, start_publish_time, start_source,
	start_time, end_price, end_conf, end_publish_time, end_source, end_time, created_at`

func scanRound(row interface{ Scan(...any) error }) (*domain.Round, error) {
	var (
		r            domain.Round
		status       string
		startPub     sql.NullTime
		endPrice     sql.NullFloat64
		endConf      sql.NullFloat64
		endPub       sql.NullTime
		endSource    sql.NullString
		endTime      sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Asset, &status, &r.Start.Price, &r.Start.Conf, &startPub,
		&r.Start.Source, &r.StartTime, &endPrice, &endConf, &endPub, &endSource, &endTime, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RoundStatus(status)
	if startPub.Valid {
		r.Start.PublishTime = startPub.Time
	}
	if endPrice.Valid {
		end := domain.Snapshot{Price: endPrice.Float64, Conf: endConf.Float64, Source: endSource.String}
		if endPub.Valid {
			end.PublishTime = endPub.Time
		}
		r.End = &end
	}
	if endTime.Valid {
		t := endTime.Time
		r.EndTime = &t
	}
	return &r, nil
}

func (p *RoundRepo) Get(ctx context.Context, id string) (*domain.Round, error) {
	r, err := scanRound(p.db.QueryRowContext(ctx, `SELECT `+roundCols+` FROM rounds WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return r, err
}

func (p *RoundRepo) FindActive(ctx context.Context, asset string) (*domain.Round, error) {
	r, err := scanRound(p.db.QueryRowContext(ctx, `
		SELECT `+roundCols+` FROM rounds
		WHERE asset=$1 AND status='active'
		ORDER BY start_time DESC LIMIT 1`, asset))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return r, err
}

// Insert grava a rodada como ativa. O índice parcial rounds_one_active_per_asset
// rejeita uma segunda ativa do mesmo ativo; esse é o guarda de corrida entre
// primeiros apostadores concorrentes.
func (p *RoundRepo) Insert(ctx context.Context, r *domain.Round) error {
	var startPub any
	if !r.Start.PublishTime.IsZero() {
		startPub = r.Start.PublishTime
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id, asset, status, start_price, start_conf, start_publish_time,
			start_source, start_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.Asset, string(r.Status), r.Start.Price, r.Start.Conf, startPub,
		r.Start.Source, r.StartTime,
	)
	if uniqueViolation(err, "rounds_one_active_per_asset") {
		return domain.ErrActiveRoundExists
	}
	return err
}

func (p *RoundRepo) FindDue(ctx context.Context, startedBefore time.Time) ([]domain.Round, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+roundCols+` FROM rounds
		WHERE status='active' AND start_time <= $1
		ORDER BY start_time`, startedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// TryLock faz o CAS active→settling. Zero linhas afetadas significa que
// outro worker já está liquidando esta rodada.
func (p *RoundRepo) TryLock(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE rounds SET status='settling', updated_at=NOW()
		WHERE id=$1 AND status='active'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *RoundRepo) Unlock(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE rounds SET status='active', updated_at=NOW()
		WHERE id=$1 AND status='settling'`, id)
	return err
}

func (p *RoundRepo) Finish(ctx context.Context, id string, end domain.Snapshot, endTime time.Time) error {
	var endPub any
	if !end.PublishTime.IsZero() {
		endPub = end.PublishTime
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE rounds SET status='ended', end_price=$2, end_conf=$3, end_publish_time=$4,
			end_source=$5, end_time=$6, updated_at=NOW()
		WHERE id=$1 AND status='settling'`,
		id, end.Price, end.Conf, endPub, end.Source, endTime)
	return err
}
