// Package score computes gas-refund scores from reconstructed balances,
// the price series, and the boost engine.
package score

import "math/big"

// Fixed-point constants, all on the token's 18-decimal scale. Ratios are
// applied multiply-before-divide to minimize truncation error.
var (
	tokenScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// sePSP2 composition: 80% PSP exposure, 20% WETH exposure.
	pspShare  = new(big.Int).Mul(big.NewInt(8), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	wethShare = new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))

	// PSP per sePSP2 conversion ratio, 0.11 on the 18-decimal scale.
	pspConversionRatio = new(big.Int).Mul(big.NewInt(11), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))

	// WETH leg weight in the composite score, ×2.5 as 5/2.
	wethWeightNum = big.NewInt(5)
	wethWeightDen = big.NewInt(2)

	usdScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// Composition is a sePSP2 balance split into its PSP and WETH legs.
type Composition struct {
	SePSP2 *big.Int
	PSP    *big.Int
	WETH   *big.Int
}

// SplitSePSP2 derives the PSP and WETH legs from a sePSP2 balance.
func SplitSePSP2(sePSP2 *big.Int) Composition {
	psp := new(big.Int).Mul(sePSP2, pspShare)
	psp.Quo(psp, pspConversionRatio)

	weth := new(big.Int).Mul(sePSP2, wethShare)
	weth.Quo(weth, tokenScale)

	return Composition{
		SePSP2: new(big.Int).Set(sePSP2),
		PSP:    psp,
		WETH:   weth,
	}
}

// CompositeScore combines the PSP leg with the ×2.5-weighted WETH leg.
func CompositeScore(psp, weth *big.Int) *big.Int {
	weighted := new(big.Int).Mul(weth, wethWeightNum)
	weighted.Quo(weighted, wethWeightDen)
	return weighted.Add(weighted, psp)
}

// GasCostWei is the transaction's gas cost in the chain currency.
func GasCostWei(gasUsed uint64, gasPriceWei *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPriceWei)
}

// USDValue converts a wei amount to USD at the given 10^10-scaled price.
// The result keeps the 10^10 scale.
func USDValue(wei, price *big.Int) *big.Int {
	usd := new(big.Int).Mul(wei, price)
	return usd.Quo(usd, usdScale)
}
