package domain

import "time"

type RoundStatus string

const (
	RoundActive   RoundStatus = "active"
	RoundSettling RoundStatus = "settling"
	RoundEnded    RoundStatus = "ended"
)

type BetStatus string

const (
	BetPending      BetStatus = "pending"
	BetWon          BetStatus = "won"
	BetLost         BetStatus = "lost"
	BetPayoutFailed BetStatus = "payout_failed"
)

type Prediction string

const (
	PredictionUp   Prediction = "up"
	PredictionDown Prediction = "down"
)

// Multiplicadores aceitos numa aposta.
var ValidMultipliers = map[int]bool{1: true, 2: true, 5: true, 10: true}

// Snapshot é a leitura de preço do oráculo num instante, com os metadados
// que ficam gravados na rodada pra fins de auditoria.
type Snapshot struct {
	Price       float64
	Conf        float64 // 0 quando a fonte não informa intervalo de confiança
	PublishTime time.Time
	Source      string // "binance", "pyth", ...
}

// Round é uma janela de aposta sobre a direção do preço de um ativo.
// Nunca é deletada (trilha de auditoria); o status só transita
// active→settling→ended, com rollback settling→active antes do snapshot final.
type Round struct {
	ID        string
	Asset     string
	Status    RoundStatus
	Start     Snapshot
	StartTime time.Time
	End       *Snapshot
	EndTime   *time.Time
	CreatedAt time.Time
}

// Bet pertence exclusivamente a uma rodada. Uma carteira aposta no máximo
// uma vez por rodada, e cada assinatura de depósito lastreia exatamente
// uma aposta, pra sempre.
type Bet struct {
	ID            string
	RoundID       string
	UserID        string
	WalletAddress string
	Prediction    Prediction
	Multiplier    int
	StakeAmount   float64
	PotentialWin  float64
	ActualWin     float64
	Status        BetStatus
	DepositTxSig  string
	CreatedAt     time.Time
}

// Weight é a base do rateio pari-mutuel.
func (b *Bet) Weight() float64 {
	return b.StakeAmount * float64(b.Multiplier)
}

type User struct {
	ID            string
	WalletAddress string
	TotalWagered  float64
	TotalWon      float64
	WinStreak     int
	CreatedAt     time.Time
}

type TransactionType string

const (
	TxDeposit TransactionType = "deposit"
	TxPayout  TransactionType = "payout"
)

// TransactionRecord é o ledger append-only de movimentos on-chain.
// Nunca é atualizado após o insert.
type TransactionRecord struct {
	ID            string
	UserID        string
	WalletAddress string
	Type          TransactionType
	Amount        float64
	TxSignature   string
	Status        string
	CreatedAt     time.Time
}
