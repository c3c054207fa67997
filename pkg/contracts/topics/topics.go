package topics

const (
	// Apostas
	BetPlaced = "bet_placed"

	// Liquidação de rodadas
	RoundSettled = "round_settled"

	// Payouts que falharam on-chain e aguardam retry fora do caminho quente
	PayoutFailedDLQ = "payout_failed_dlq"
)
