package scheduler

import "time"

// AssetStatus is the outcome of one asset within a batch run.
type AssetStatus string

const (
	AssetStatusSkippedNoConfig    AssetStatus = "skipped_no_config"
	AssetStatusBelowThreshold     AssetStatus = "below_threshold"
	AssetStatusDistributed        AssetStatus = "distributed"
	AssetStatusDistributionFailed AssetStatus = "distribution_failed"
	AssetStatusBuybackExecuted    AssetStatus = "buyback_executed"
	AssetStatusBuybackFailed      AssetStatus = "buyback_failed"
	AssetStatusError              AssetStatus = "error"
)

// Processed reports whether the asset reached the distribution stage and
// therefore counts against the pacing budget.
func (s AssetStatus) Processed() bool {
	switch s {
	case AssetStatusDistributed, AssetStatusDistributionFailed, AssetStatusBuybackExecuted, AssetStatusBuybackFailed:
		return true
	}
	return false
}

type AssetResult struct {
	Mint                  string      `json:"mint"`
	Symbol                string      `json:"symbol"`
	Status                AssetStatus `json:"status"`
	VaultBalanceLamports  uint64      `json:"vault_balance_lamports,omitempty"`
	DistributedLamports   uint64      `json:"distributed_lamports,omitempty"`
	DistributionSignature string      `json:"distribution_signature,omitempty"`
	BuybackLamports       uint64      `json:"buyback_lamports,omitempty"`
	TokensBurned          uint64      `json:"tokens_burned,omitempty"`
	PurchaseSignature     string      `json:"purchase_signature,omitempty"`
	BurnSignature         string      `json:"burn_signature,omitempty"`
	Error                 string      `json:"error,omitempty"`
}

// BatchResult summarizes one pass over the active assets.
type BatchResult struct {
	Trigger                  string        `json:"trigger"`
	StartedAt                time.Time     `json:"started_at"`
	Duration                 time.Duration `json:"duration_ns"`
	TokensChecked            int           `json:"tokens_checked"`
	TokensDistributed        int           `json:"tokens_distributed"`
	BuybacksExecuted         int           `json:"buybacks_executed"`
	TotalDistributedLamports uint64        `json:"total_distributed_lamports"`
	TotalBuybackLamports     uint64        `json:"total_buyback_lamports"`
	TotalTokensBurned        uint64        `json:"total_tokens_burned"`
	Results                  []AssetResult `json:"results"`
}

// Failures counts assets whose run ended in an error state.
func (r *BatchResult) Failures() int {
	var n int
	for _, a := range r.Results {
		switch a.Status {
		case AssetStatusDistributionFailed, AssetStatusBuybackFailed, AssetStatusError:
			n++
		}
	}
	return n
}

func (r *BatchResult) record(a AssetResult) {
	r.Results = append(r.Results, a)
	switch a.Status {
	case AssetStatusDistributed, AssetStatusBuybackExecuted, AssetStatusBuybackFailed:
		r.TokensDistributed++
		r.TotalDistributedLamports += a.DistributedLamports
	}
	if a.Status == AssetStatusBuybackExecuted {
		r.BuybacksExecuted++
		r.TotalBuybackLamports += a.BuybackLamports
		r.TotalTokensBurned += a.TokensBurned
	}
}
