// Package memory traz implementações em memória dos stores do jogo,
// com a mesma semântica de transições condicionais e unicidade do Postgres.
// Usadas em testes e no modo standalone de desenvolvimento.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pricetoss/price-toss-platform/internal/game/domain"
)

type RoundStore struct {
	mu     sync.Mutex
	rounds map[string]*domain.Round
}

func NewRoundStore() *RoundStore {
	return &RoundStore{rounds: make(map[string]*domain.Round)}
}

func (s *RoundStore) Get(_ context.Context, id string) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *RoundStore) FindActive(_ context.Context, asset string) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.Round
	for _, r := range s.rounds {
		if r.Asset == asset && r.Status == domain.RoundActive {
			if best == nil || r.StartTime.After(best.StartTime) {
				best = r
			}
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *RoundStore) Insert(_ context.Context, r *domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.rounds {
		if ex.Asset == r.Asset && ex.Status == domain.RoundActive {
			return domain.ErrActiveRoundExists
		}
	}
	cp := *r
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.rounds[cp.ID] = &cp
	return nil
}

func (s *RoundStore) FindDue(_ context.Context, startedBefore time.Time) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if r.Status == domain.RoundActive && !r.StartTime.After(startedBefore) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *RoundStore) TryLock(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != domain.RoundActive {
		return false, nil
	}
	r.Status = domain.RoundSettling
	return true, nil
}

func (s *RoundStore) Unlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[id]; ok && r.Status == domain.RoundSettling {
		r.Status = domain.RoundActive
	}
	return nil
}

func (s *RoundStore) Finish(_ context.Context, id string, end domain.Snapshot, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != domain.RoundSettling {
		return nil
	}
	e := end
	t := endTime
	r.End = &e
	r.EndTime = &t
	r.Status = domain.RoundEnded
	return nil
}

type BetStore struct {
	mu   sync.Mutex
	bets map[string]*domain.Bet
}

func NewBetStore() *BetStore {
	return &BetStore{bets: make(map[string]*domain.Bet)}
}

func (s *BetStore) Get(_ context.Context, id string) (*domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *BetStore) FindByDepositSig(_ context.Context, sig string) (*domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bets {
		if b.DepositTxSig == sig {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *BetStore) FindByRoundAndWallet(_ context.Context, roundID, wallet string) (*domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bets {
		if b.RoundID == roundID && b.WalletAddress == wallet {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *BetStore) Insert(_ context.Context, b *domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.bets {
		if ex.RoundID == b.RoundID && ex.WalletAddress == b.WalletAddress {
			return domain.ErrDuplicateBet
		}
		if ex.DepositTxSig == b.DepositTxSig {
			return domain.ErrDuplicateDeposit
		}
	}
	cp := *b
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.bets[cp.ID] = &cp
	return nil
}

func (s *BetStore) ListByRound(_ context.Context, roundID string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.RoundID == roundID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *BetStore) ListPayoutFailed(_ context.Context, limit int) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.Status == domain.BetPayoutFailed {
			out = append(out, *b)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *BetStore) ListPendingRoundIDs(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, b := range s.bets {
		if b.Status != domain.BetPending || !b.CreatedAt.Before(before) || seen[b.RoundID] {
			continue
		}
		seen[b.RoundID] = true
		out = append(out, b.RoundID)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *BetStore) MarkWon(_ context.Context, id string, actualWin float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.Status != domain.BetPending && b.Status != domain.BetPayoutFailed {
		return false, nil
	}
	b.Status = domain.BetWon
	b.ActualWin = actualWin
	return true, nil
}

func (s *BetStore) MarkLost(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.Status != domain.BetPending {
		return false, nil
	}
	b.Status = domain.BetLost
	return true, nil
}

func (s *BetStore) MarkPayoutFailed(_ context.Context, id string, actualWin float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status == domain.BetPending {
		b.Status = domain.BetPayoutFailed
		b.ActualWin = actualWin
	}
	return nil
}

type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User // por id
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func (s *UserStore) GetByWallet(_ context.Context, wallet string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.WalletAddress == wallet {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *UserStore) GetOrCreateByWallet(_ context.Context, wallet string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.WalletAddress == wallet {
			cp := *u
			return &cp, nil
		}
	}
	u := &domain.User{ID: uuid.NewString(), WalletAddress: wallet, CreatedAt: time.Now()}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *UserStore) AddWagered(_ context.Context, userID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.TotalWagered += amount
	}
	return nil
}

func (s *UserStore) RecordWin(_ context.Context, userID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.TotalWon += amount
		u.WinStreak++
	}
	return nil
}

func (s *UserStore) ResetStreak(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.WinStreak = 0
	}
	return nil
}

type TxStore struct {
	mu      sync.Mutex
	Records []domain.TransactionRecord
}

func NewTxStore() *TxStore { return &TxStore{} }

func (s *TxStore) Insert(_ context.Context, t *domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.Records {
		if ex.TxSignature == t.TxSignature {
			return domain.ErrDuplicateTransaction
		}
	}
	cp := *t
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	s.Records = append(s.Records, cp)
	return nil
}
