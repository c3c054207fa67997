package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Validação de entrada: rejeitada antes de qualquer escrita.
	ErrInvalidInput = errors.New("invalid input")

	// O depósito on-chain não confere (inexistente, falho ou valor menor).
	ErrPaymentNotVerified = errors.New("payment not verified")

	// Já existe aposta desta carteira nesta rodada.
	ErrDuplicateBet = errors.New("duplicate bet for wallet in round")

	// A assinatura de depósito já lastreia outra aposta.
	ErrDuplicateDeposit = errors.New("deposit signature already used")

	// Já existe registro no ledger pra esta assinatura.
	ErrDuplicateTransaction = errors.New("transaction signature already recorded")

	// Outro chamador criou a rodada ativa primeiro; basta rebuscar.
	ErrActiveRoundExists = errors.New("active round already exists for asset")

	// Oráculo indisponível na criação da rodada; o chamador pode tentar de novo.
	ErrRoundUnavailable = errors.New("round unavailable")

	// Oráculo indisponível durante a liquidação; a rodada volta pra active.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)
