package dto

import "time"

type BetResponse struct {
	BetID        string  `json:"bet_id"`
	RoundID      string  `json:"round_id"`
	Prediction   string  `json:"prediction"`
	Multiplier   int     `json:"multiplier"`
	StakeAmount  float64 `json:"stake_amount"`
	PotentialWin float64 `json:"potential_win"`
	ActualWin    float64 `json:"actual_win,omitempty"`
	Status       string  `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// GameStateResponse é a visão do apostador sobre a rodada ativa do ativo.
type GameStateResponse struct {
	Asset        string       `json:"asset"`
	RoundID      string       `json:"round_id,omitempty"`
	Status       string       `json:"status,omitempty"`
	StartPrice   float64      `json:"start_price,omitempty"`
	StartTime    *time.Time   `json:"start_time,omitempty"`
	SecondsLeft  int64        `json:"seconds_left"`
	CurrentPrice float64      `json:"current_price,omitempty"`
	PriceSource  string       `json:"price_source,omitempty"`
	UpPool       float64      `json:"up_pool"`
	DownPool     float64      `json:"down_pool"`
	Bettors      int          `json:"bettors"`
	YourBet      *BetResponse `json:"your_bet,omitempty"`
}
