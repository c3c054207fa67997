// Package chain fala com o gateway de blockchain: verificação de depósitos
// e envio de payouts. O core nunca conversa com o RPC da chain diretamente;
// só precisa destes dois contratos estreitos.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type verifyRequest struct {
	TxSignature       string  `json:"tx_signature"`
	ExpectedAmount    float64 `json:"expected_amount"`
	ExpectedSender    string  `json:"expected_sender"`
	ExpectedRecipient string  `json:"expected_recipient"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyDeposit confere no gateway se o depósito existe, teve sucesso e
// moveu ao menos o valor esperado do apostador pro tesouro. A tolerância
// de arredondamento é do gateway; taxa de rede nunca conta como tolerância.
func (c *Client) VerifyDeposit(ctx context.Context, txSignature string, expectedAmount float64, expectedSender, expectedRecipient string) (bool, error) {
	body, _ := json.Marshal(verifyRequest{
		TxSignature:       txSignature,
		ExpectedAmount:    expectedAmount,
		ExpectedSender:    expectedSender,
		ExpectedRecipient: expectedRecipient,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chain/verify", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("chain verify: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return false, fmt.Errorf("chain verify http %d", res.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

type transferRequest struct {
	ToAddress string  `json:"to_address"`
	Amount    float64 `json:"amount"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// Transfer envia um payout pelo gateway e devolve a assinatura da
// transação. Semântica at-least-once: deduplicação é responsabilidade do
// ledger de transações de quem chama.
func (c *Client) Transfer(ctx context.Context, toAddress string, amount float64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("transfer amount must be positive, got %v", amount)
	}
	body, _ := json.Marshal(transferRequest{ToAddress: toAddress, Amount: amount})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chain/transfer", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain transfer: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("chain transfer http %d", res.StatusCode)
	}

	var out transferResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Signature == "" {
		return "", fmt.Errorf("chain transfer rejected: %s", out.Error)
	}
	return out.Signature, nil
}
