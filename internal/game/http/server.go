package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/game/bets"
	"github.com/pricetoss/price-toss-platform/internal/game/domain"
	"github.com/pricetoss/price-toss-platform/internal/game/dto"
	"github.com/pricetoss/price-toss-platform/internal/prices"
)

// BetService é o recorte do ledger de apostas que a API usa.
type BetService interface {
	PlaceBet(ctx context.Context, p bets.PlaceBetParams) (*domain.Bet, error)
	GetBet(ctx context.Context, id string) (*domain.Bet, error)
}

// PriceReader lê o preço corrente do cache; nil desliga o campo na resposta.
type PriceReader interface {
	GetCurrent(ctx context.Context, asset string) (prices.Tick, bool, error)
}

type Server struct {
	log           *zap.Logger
	svc           BetService
	rounds        domain.RoundStore
	betStore      domain.BetStore
	price         PriceReader
	roundDuration time.Duration
}

func NewServer(log *zap.Logger, svc BetService, rounds domain.RoundStore, betStore domain.BetStore, price PriceReader, roundDuration time.Duration) *Server {
	return &Server{log: log, svc: svc, rounds: rounds, betStore: betStore, price: price, roundDuration: roundDuration}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bets", s.placeBet)   // POST
	mux.HandleFunc("/bets/", s.getBet)    // GET /bets/{id}
	mux.HandleFunc("/state", s.gameState) // GET /state?asset=BTC&wallet=...
	return mux
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	bet, err := s.svc.PlaceBet(r.Context(), bets.PlaceBetParams{
		WalletAddress: req.WalletAddress,
		Asset:         req.Asset,
		Prediction:    req.Prediction,
		Multiplier:    req.Multiplier,
		StakeAmount:   req.StakeAmount,
		DepositTxSig:  req.DepositTxSig,
	})
	if err != nil {
		s.writeBetError(w, err)
		return
	}

	writeJSON(w, toBetResponse(bet))
}

// writeBetError mapeia a taxonomia de erros do core pra códigos HTTP.
// Condições esperadas nunca viram 500 genérico.
func (s *Server) writeBetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPaymentNotVerified):
		writeError(w, http.StatusPaymentRequired, "deposit could not be verified")
	case errors.Is(err, domain.ErrDuplicateBet):
		writeError(w, http.StatusConflict, "wallet already has a bet in this round")
	case errors.Is(err, domain.ErrRoundUnavailable):
		writeError(w, http.StatusServiceUnavailable, "round unavailable, try again")
	default:
		s.log.Error("place bet", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// path: /bets/{id}
	id := r.URL.Path[len("/bets/"):]
	if id == "" {
		writeError(w, http.StatusBadRequest, "betId required")
		return
	}

	bet, err := s.svc.GetBet(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	writeJSON(w, toBetResponse(bet))
}

func (s *Server) gameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset required")
		return
	}
	wallet := r.URL.Query().Get("wallet")

	resp := dto.GameStateResponse{Asset: asset}

	if s.price != nil {
		if tick, ok, err := s.price.GetCurrent(r.Context(), asset); err == nil && ok {
			resp.CurrentPrice = tick.Price
			resp.PriceSource = tick.Source
		}
	}

	round, err := s.rounds.FindActive(r.Context(), asset)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, resp) // sem rodada ativa: estado vazio é resposta válida
		return
	}
	if err != nil {
		s.log.Error("find active round", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp.RoundID = round.ID
	resp.Status = string(round.Status)
	resp.StartPrice = round.Start.Price
	resp.StartTime = &round.StartTime
	if left := time.Until(round.StartTime.Add(s.roundDuration)); left > 0 {
		resp.SecondsLeft = int64(left.Seconds())
	}

	roundBets, err := s.betStore.ListByRound(r.Context(), round.ID)
	if err != nil {
		s.log.Error("list round bets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	for i := range roundBets {
		b := &roundBets[i]
		if b.Prediction == domain.PredictionUp {
			resp.UpPool += b.StakeAmount
		} else {
			resp.DownPool += b.StakeAmount
		}
		if wallet != "" && b.WalletAddress == wallet {
			br := toBetResponse(b)
			resp.YourBet = &br
		}
	}
	resp.Bettors = len(roundBets)

	writeJSON(w, resp)
}

func toBetResponse(b *domain.Bet) dto.BetResponse {
	return dto.BetResponse{
		BetID:        b.ID,
		RoundID:      b.RoundID,
		Prediction:   string(b.Prediction),
		Multiplier:   b.Multiplier,
		StakeAmount:  b.StakeAmount,
		PotentialWin: b.PotentialWin,
		ActualWin:    b.ActualWin,
		Status:       string(b.Status),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: msg})
}
