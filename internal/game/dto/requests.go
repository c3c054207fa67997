package dto

type PlaceBetRequest struct {
	WalletAddress string  `json:"wallet_address"`
	Asset         string  `json:"asset"`
	Prediction    string  `json:"prediction"` // "up" | "down"
	Multiplier    int     `json:"multiplier"` // 1, 2, 5 ou 10
	StakeAmount   float64 `json:"stake_amount"`
	DepositTxSig  string  `json:"deposit_tx_signature"`
}
