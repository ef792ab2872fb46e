package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ChainParams are the per-network presets: the staking-receipt token,
// the monitored settlement contracts, and the default scan range.
type ChainParams struct {
	Name    string
	ChainID string
	// SePSP2 is the staking-receipt token whose events form the ledger.
	SePSP2 common.Address
	// Settlements maps monitored settlement contracts to their labels.
	Settlements map[common.Address]string
	// Default scan bounds, overridable via --from / --to.
	DefaultFromBlock uint64
	DefaultToBlock   uint64
}

var (
	augustusMainnet = common.HexToAddress("0x6a000f20005980200259b80c5102003040001068")
	deltaMainnet    = common.HexToAddress("0x0000000000bbf5c5fd284e657f01bd000933c96d")

	sePSP2Mainnet  = common.HexToAddress("0x593F39A4Ba26A9c8ed2128ac95D109E8e403C485")
	sePSP2Optimism = common.HexToAddress("0x26Ee65874f5DbEfa629EB103E7BbB2DEAF4fB2c8")
)

var chains = map[string]ChainParams{
	"mainnet": {
		Name:    "mainnet",
		ChainID: "1",
		SePSP2:  sePSP2Mainnet,
		Settlements: map[common.Address]string{
			augustusMainnet: "Augustus",
			deltaMainnet:    "Delta",
		},
		DefaultFromBlock: 20207948,
		DefaultToBlock:   21713028,
	},
	// Optimism carries staking only; settlements are discovered on
	// mainnet.
	"optimism": {
		Name:             "optimism",
		ChainID:          "10",
		SePSP2:           sePSP2Optimism,
		DefaultFromBlock: 122096611,
		DefaultToBlock:   131196625,
	},
}

// Chain returns the presets for a configured network. An unknown chain
// is a configuration error and fatal for every command.
func Chain(name string) (ChainParams, error) {
	params, ok := chains[name]
	if !ok {
		return ChainParams{}, fmt.Errorf("unknown chain %q (known: mainnet, optimism)", name)
	}
	return params, nil
}

// ChainNames lists the configured networks.
func ChainNames() []string {
	return []string{"mainnet", "optimism"}
}
