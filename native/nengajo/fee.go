package nengajo

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Default registration pricing: ten gating-token units per copy.
var (
	DefaultFeeBase    = big.NewInt(0)
	DefaultFeePerCopy = big.NewInt(10)
)

// FeeSchedule prices a registration as Base + PerCopy*maxSupply. Amounts are
// expressed in the smallest unit of the gating token.
type FeeSchedule struct {
	Base    *big.Int
	PerCopy *big.Int
}

// DefaultFeeSchedule returns the stock pricing.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{Base: new(big.Int).Set(DefaultFeeBase), PerCopy: new(big.Int).Set(DefaultFeePerCopy)}
}

// Validate checks both terms fit a uint256 and the per-copy term is positive,
// which keeps the fee strictly increasing in maxSupply.
func (f FeeSchedule) Validate() error {
	if f.PerCopy == nil || f.PerCopy.Sign() <= 0 {
		return fmt.Errorf("%w: per-copy fee must be positive", ErrInvalidFeeSchedule)
	}
	if f.Base != nil && f.Base.Sign() < 0 {
		return fmt.Errorf("%w: base fee must be non-negative", ErrInvalidFeeSchedule)
	}
	if _, overflow := uint256.FromBig(f.PerCopy); overflow {
		return fmt.Errorf("%w: per-copy fee exceeds 256 bits", ErrInvalidFeeSchedule)
	}
	if f.Base != nil {
		if _, overflow := uint256.FromBig(f.Base); overflow {
			return fmt.Errorf("%w: base fee exceeds 256 bits", ErrInvalidFeeSchedule)
		}
	}
	return nil
}

// Fee returns the gating-token amount required to register maxSupply copies.
// A result that does not fit in 256 bits can never be paid and is reported as
// ErrInsufficientGatingBalance.
func (f FeeSchedule) Fee(maxSupply uint64) (*big.Int, error) {
	if maxSupply == 0 {
		return nil, ErrInvalidMaxSupply
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	perCopy, _ := uint256.FromBig(f.PerCopy)
	total, overflow := new(uint256.Int).MulOverflow(perCopy, uint256.NewInt(maxSupply))
	if overflow {
		return nil, fmt.Errorf("%w: fee overflow", ErrInsufficientGatingBalance)
	}
	if f.Base != nil {
		base, _ := uint256.FromBig(f.Base)
		if _, overflow = total.AddOverflow(total, base); overflow {
			return nil, fmt.Errorf("%w: fee overflow", ErrInsufficientGatingBalance)
		}
	}
	return total.ToBig(), nil
}
