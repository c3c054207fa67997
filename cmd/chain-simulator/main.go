// chain-simulator é o dublê local do gateway de blockchain: verifica
// qualquer depósito bem formado e "envia" payouts devolvendo assinaturas
// sintéticas, com uma fração de falhas pra exercitar o caminho de retry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pricetoss/price-toss-platform/internal/shared/config"
	"github.com/pricetoss/price-toss-platform/internal/shared/logger"
	"github.com/pricetoss/price-toss-platform/internal/shared/metrics"
)

var (
	verifies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chain_sim_verifies_total", Help: "verificações de depósito"},
		[]string{"result"},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chain_sim_transfers_total", Help: "transferências simuladas"},
		[]string{"result"},
	)
)

type verifyReq struct {
	TxSignature       string  `json:"tx_signature"`
	ExpectedAmount    float64 `json:"expected_amount"`
	ExpectedSender    string  `json:"expected_sender"`
	ExpectedRecipient string  `json:"expected_recipient"`
}

type verifyResp struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

type transferReq struct {
	ToAddress string  `json:"to_address"`
	Amount    float64 `json:"amount"`
}

type transferResp struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

type server struct {
	log *zap.Logger
	rnd *rand.Rand
}

func (s *server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp := verifyResp{Verified: true}
	switch {
	case req.TxSignature == "":
		resp = verifyResp{Verified: false, Reason: "missing signature"}
	case req.ExpectedAmount <= 0:
		resp = verifyResp{Verified: false, Reason: "invalid amount"}
	case req.ExpectedSender == "" || req.ExpectedRecipient == "":
		resp = verifyResp{Verified: false, Reason: "missing wallet"}
	}

	if resp.Verified {
		verifies.WithLabelValues("ok").Inc()
	} else {
		verifies.WithLabelValues("rejected").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *server) transferHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req transferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp := transferResp{}
	if req.ToAddress == "" || req.Amount <= 0 {
		resp.Error = "invalid transfer"
	} else if s.rnd.Intn(100) < 10 { // 10% de falha simulada
		resp.Error = "rpc timeout (simulated)"
	} else {
		resp.Signature = fmt.Sprintf("SIM-%d-%06d", time.Now().UnixNano(), s.rnd.Intn(1000000))
	}

	if resp.Signature != "" {
		transfers.WithLabelValues("ok").Inc()
		s.log.Info("simulated transfer",
			zap.String("to", req.ToAddress),
			zap.Float64("amount", req.Amount),
			zap.String("signature", resp.Signature),
		)
	} else {
		transfers.WithLabelValues("failed").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(verifies, transfers)
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error { return nil })

	s := &server{log: log, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	mux := http.NewServeMux()
	mux.HandleFunc("/chain/verify", s.verifyHandler)
	mux.HandleFunc("/chain/transfer", s.transferHandler)

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("chain simulator running", zap.String("addr", addr), zap.String("paths", "/chain/verify,/chain/transfer"))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
