package model

import "math/big"

// SettlementTx is a settlement transaction on a monitored contract for
// which a gas-refund score and boost are computed.
type SettlementTx struct {
	Chain          string   `json:"chain"`
	TxHash         string   `json:"tx_hash"`
	User           string   `json:"user"`
	Contract       string   `json:"contract"`
	Method         string   `json:"method,omitempty"`
	GasUsed        uint64   `json:"gas_used"`
	GasPriceWei    *big.Int `json:"gas_price_wei"`
	BlockNumber    uint64   `json:"block_number"`
	BlockTimestamp uint64   `json:"block_timestamp"`
}

// GasRefundScore is the output record per scored transaction.
// Amounts are fixed-point integers: wei for chain currency, 1e10 scale
// for USD values, 1e18 token base units for staked amounts.
type GasRefundScore struct {
	TxHash         string   `json:"tx_hash"`
	User           string   `json:"user"`
	GasUsedWei     *big.Int `json:"gas_used_wei"`
	GasUsedUSD     *big.Int `json:"gas_used_usd"`
	TotalStakedPSP *big.Int `json:"total_staked_psp"`
	Score          *big.Int `json:"score"`
	Boost          float64  `json:"boost"`
}

// PricePoint is one sample of the quote-currency price series.
// Value is scaled by 1e10.
type PricePoint struct {
	Timestamp uint64   `json:"timestamp"`
	Value     *big.Int `json:"value"`
}
