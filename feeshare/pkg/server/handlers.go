package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/feesharing"
	"github.com/moltpump/feeshare/feeshare/pkg/scheduler"
)

type distributeRequest struct {
	MintAddress string `json:"mint_address"`
}

type batchDistributeRequest struct {
	MintAddresses []string `json:"mint_addresses"`
}

type setupRequest struct {
	MintAddress string `json:"mint_address"`
	AgentWallet string `json:"agent_wallet"`
}

type distributeResponse struct {
	MintAddress          string  `json:"mint_address"`
	Success              bool    `json:"success"`
	Signature            string  `json:"tx_signature,omitempty"`
	AmountLamports       uint64  `json:"amount_distributed_lamports,omitempty"`
	AmountDistributedSOL float64 `json:"amount_distributed_sol,omitempty"`
	BalanceLamports      uint64  `json:"balance_lamports,omitempty"`
	MinimumLamports      uint64  `json:"minimum_lamports,omitempty"`
	Error                string  `json:"error,omitempty"`
}

type batchDistributeResponse struct {
	TokensChecked     int                  `json:"tokens_checked"`
	TokensDistributed int                  `json:"tokens_distributed"`
	TokensFailed      int                  `json:"tokens_failed"`
	Results           []distributeResponse `json:"results"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	mint, err := chain.ParseAddress(chi.URLParam(r, "mint"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Fees.Status(r.Context(), mint))
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mint, err := chain.ParseAddress(req.MintAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	configured, err := s.cfg.Fees.ConfigStatus(r.Context(), mint)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !configured {
		s.writeError(w, http.StatusBadRequest, "fee sharing is not configured for this token")
		return
	}

	d, err := s.cfg.Fees.DistributeCreatorFees(r.Context(), mint)
	if err != nil {
		resp := distributionResponse(mint, nil, err)
		s.writeJSON(w, distributionErrorStatus(err), resp)
		return
	}
	s.writeJSON(w, http.StatusOK, distributionResponse(mint, d, nil))
}

func (s *Server) handleBatchDistribute(w http.ResponseWriter, r *http.Request) {
	var req batchDistributeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.MintAddresses) == 0 || len(req.MintAddresses) > maxBatchMints {
		s.writeError(w, http.StatusBadRequest, "mint_addresses must contain between 1 and 10 addresses")
		return
	}

	mints := make([]solana.PublicKey, 0, len(req.MintAddresses))
	for _, raw := range req.MintAddresses {
		mint, err := chain.ParseAddress(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mints = append(mints, mint)
	}

	resp := batchDistributeResponse{TokensChecked: len(mints), Results: []distributeResponse{}}
	ready := s.cfg.Fees.TokensReadyForDistribution(r.Context(), mints)
	if len(ready) == 0 {
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	for _, md := range s.cfg.Fees.BatchDistributeCreatorFees(r.Context(), ready) {
		entry := distributionResponse(md.Mint, md.Distribution, md.Err)
		if entry.Success {
			resp.TokensDistributed++
		} else {
			resp.TokensFailed++
		}
		resp.Results = append(resp.Results, entry)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mint, err := chain.ParseAddress(req.MintAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.cfg.Assets != nil {
		asset, err := s.cfg.Assets.FindAssetByMint(r.Context(), mint.String())
		if err != nil {
			s.log.Error("server: failed to look up asset", "mint", mint, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to look up token")
			return
		}
		if asset == nil {
			s.writeError(w, http.StatusNotFound, "token is not registered")
			return
		}
		if req.AgentWallet == "" {
			req.AgentWallet = asset.AgentWallet
		}
	}
	agent, err := chain.ParseAddress(req.AgentWallet)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cfg.Fees.SetupFeeSharing(r.Context(), mint, agent)
	if err != nil {
		var partial *feesharing.PartialSetupError
		if errors.As(err, &partial) {
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":           err.Error(),
				"config_address":  partial.ConfigAddress.String(),
				"setup_signature": partial.SetupSignature.String(),
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAutoDistribute(w http.ResponseWriter, r *http.Request) {
	s.log.Info("server: manual distribution run requested")
	res, err := s.cfg.Runner.TriggerManualRun(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, scheduler.ErrStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Assets == nil {
		s.writeError(w, http.StatusNotFound, "asset store is not configured")
		return
	}
	agent, err := chain.ParseAddress(r.URL.Query().Get("agent"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assets, err := s.cfg.Assets.ListAssetsByAgent(r.Context(), agent.String())
	if err != nil {
		s.log.Error("server: failed to list agent assets", "agent", agent, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}
	mints := make([]solana.PublicKey, 0, len(assets))
	symbols := make(map[solana.PublicKey]string, len(assets))
	for _, a := range assets {
		mint, err := chain.ParseAddress(a.Mint)
		if err != nil {
			s.log.Warn("server: skipping asset with invalid mint", "mint", a.Mint, "error", err)
			continue
		}
		mints = append(mints, mint)
		symbols[mint] = a.Symbol
	}

	stats := s.cfg.Fees.AgentStats(r.Context(), mints)
	stats.TotalTokens = len(assets)
	for i := range stats.Tokens {
		stats.Tokens[i].Symbol = symbols[stats.Tokens[i].Mint]
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		s.writeError(w, http.StatusNotFound, "audit trail is not configured")
		return
	}
	mint := r.URL.Query().Get("mint")
	if mint != "" {
		if _, err := chain.ParseAddress(mint); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events, err := s.cfg.Events.RecentEvents(r.Context(), mint, limit)
	if err != nil {
		s.log.Error("server: failed to read events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func distributionResponse(mint solana.PublicKey, d *feesharing.Distribution, err error) distributeResponse {
	resp := distributeResponse{MintAddress: mint.String()}
	if err != nil {
		resp.Error = err.Error()
		var below *feesharing.BelowMinimumError
		if errors.As(err, &below) {
			resp.BalanceLamports = below.Balance
			resp.MinimumLamports = below.Minimum
		}
		return resp
	}
	resp.Success = true
	resp.Signature = d.Signature.String()
	resp.AmountLamports = d.Amount
	resp.AmountDistributedSOL = chain.LamportsToSOL(d.Amount)
	return resp
}

func distributionErrorStatus(err error) int {
	var below *feesharing.BelowMinimumError
	switch {
	case errors.As(err, &below), errors.Is(err, feesharing.ErrConfigNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
