package score

import (
	"math/big"
	"testing"
)

func unit(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func TestGasCostUSDScenario(t *testing.T) {
	// 100,000 gas at 20 gwei is 2e15 wei; at 2,000.00 USD that is
	// exactly 4.00 USD on the 1e10 fixed-point scale.
	gasPrice := new(big.Int).Mul(big.NewInt(20), new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil))
	wei := GasCostWei(100_000, gasPrice)

	wantWei := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	if wei.Cmp(wantWei) != 0 {
		t.Fatalf("gas cost: got %s, want %s", wei, wantWei)
	}

	price := new(big.Int).Mul(big.NewInt(2000), new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil))
	usd := USDValue(wei, price)

	wantUSD := new(big.Int).Mul(big.NewInt(4), new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil))
	if usd.Cmp(wantUSD) != 0 {
		t.Fatalf("usd value: got %s, want %s", usd, wantUSD)
	}
}

func TestSplitSePSP2(t *testing.T) {
	comp := SplitSePSP2(unit(11))

	// 11 sePSP2: PSP leg = 11 × 0.8 / 0.11 = 80, WETH leg = 11 × 0.2 = 2.2.
	if comp.PSP.Cmp(unit(80)) != 0 {
		t.Fatalf("psp leg: got %s, want %s", comp.PSP, unit(80))
	}
	wantWETH := new(big.Int).Div(new(big.Int).Mul(unit(22), big.NewInt(1)), big.NewInt(10))
	if comp.WETH.Cmp(wantWETH) != 0 {
		t.Fatalf("weth leg: got %s, want %s", comp.WETH, wantWETH)
	}
}

func TestSplitSePSP2MultiplyBeforeDivide(t *testing.T) {
	// 1 base unit of sePSP2: dividing first would truncate to zero.
	comp := SplitSePSP2(big.NewInt(1))
	if comp.PSP.Sign() == 0 {
		t.Fatalf("psp leg truncated to zero; ratio must multiply before dividing")
	}
}

func TestCompositeScore(t *testing.T) {
	// 100 PSP + 2.5 × 4 WETH = 110.
	got := CompositeScore(unit(100), unit(4))
	if got.Cmp(unit(110)) != 0 {
		t.Fatalf("got %s, want %s", got, unit(110))
	}
}
