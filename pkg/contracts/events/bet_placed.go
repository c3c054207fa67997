package events

type BetPlaced struct {
	BetID         string  `json:"bet_id"`
	RoundID       string  `json:"round_id"`
	UserID        string  `json:"user_id"`
	WalletAddress string  `json:"wallet_address"`
	Asset         string  `json:"asset"`
	Prediction    string  `json:"prediction"` // "up" | "down"
	Multiplier    int     `json:"multiplier"`
	StakeAmount   float64 `json:"stake_amount"`
	PotentialWin  float64 `json:"potential_win"`
	DepositTxSig  string  `json:"deposit_tx_signature"`
	TsUnixMs      int64   `json:"ts_unix_ms"`
}
