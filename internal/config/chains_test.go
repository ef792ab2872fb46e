package config

import "testing"

func TestChainPresets(t *testing.T) {
	mainnet, err := Chain("mainnet")
	if err != nil {
		t.Fatalf("mainnet: %v", err)
	}
	if len(mainnet.Settlements) != 2 {
		t.Fatalf("mainnet tracks %d settlement contracts, want 2", len(mainnet.Settlements))
	}

	optimism, err := Chain("optimism")
	if err != nil {
		t.Fatalf("optimism: %v", err)
	}
	if len(optimism.Settlements) != 0 {
		t.Fatalf("optimism must not track settlement contracts")
	}
	if optimism.SePSP2 == mainnet.SePSP2 {
		t.Fatalf("per-chain staking tokens must differ")
	}
}

func TestChainUnknownIsError(t *testing.T) {
	if _, err := Chain("polygon"); err == nil {
		t.Fatalf("unknown chain must be rejected")
	}
}
