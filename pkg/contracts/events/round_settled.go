package events

import "time"

// Evento emitido pelo settlement-worker após liquidar uma rodada.
type RoundSettled struct {
	RoundID     string    `json:"round_id"`
	Asset       string    `json:"asset"`
	Direction   string    `json:"direction"` // "up" | "down"
	StartPrice  float64   `json:"start_price"`
	EndPrice    float64   `json:"end_price"`
	Winners     int       `json:"winners"`
	Losers      int       `json:"losers"`
	PayoutPool  float64   `json:"payout_pool"`
	PlatformFee float64   `json:"platform_fee"`
	PayoutFails int       `json:"payout_fails"`
	Ts          time.Time `json:"ts"`
}

// Payout que falhou on-chain; vai pra DLQ com contexto suficiente pra retry.
type PayoutFailed struct {
	BetID         string    `json:"bet_id"`
	RoundID       string    `json:"round_id"`
	WalletAddress string    `json:"wallet_address"`
	Amount        float64   `json:"amount"` // stake + ganho
	Reason        string    `json:"reason"`
	Ts            time.Time `json:"ts"`
}
