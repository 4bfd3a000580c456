package fees

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// DefaultNumerator and DefaultDenominator describe the 2.5% platform fee
	// applied until the admin configures a different rate.
	DefaultNumerator   uint64 = 25
	DefaultDenominator uint64 = 1000
)

var (
	ErrZeroDenominator   = errors.New("fees: denominator must be positive")
	ErrFeeAboveOne       = errors.New("fees: numerator exceeds denominator")
	ErrCollectorRequired = errors.New("fees: collector address required")
)

// Schedule captures the platform fee fraction and the wallet that receives
// fee payments on every settlement.
type Schedule struct {
	Numerator   uint64
	Denominator uint64
	Collector   [20]byte
}

// Default returns the default fee fraction routed to the supplied collector.
func Default(collector [20]byte) Schedule {
	return Schedule{Numerator: DefaultNumerator, Denominator: DefaultDenominator, Collector: collector}
}

// ValidateRate checks the fee fraction without looking at the collector.
func ValidateRate(numerator, denominator uint64) error {
	if denominator == 0 {
		return ErrZeroDenominator
	}
	if numerator > denominator {
		return fmt.Errorf("%w: %d/%d", ErrFeeAboveOne, numerator, denominator)
	}
	return nil
}

// Validate reports whether the schedule can be used for settlements.
func (s Schedule) Validate() error {
	if err := ValidateRate(s.Numerator, s.Denominator); err != nil {
		return err
	}
	if s.Collector == ([20]byte{}) {
		return ErrCollectorRequired
	}
	return nil
}

// Split divides a sale amount into the platform fee and the amount due to the
// owner. The fee is floored so any remainder stays with the owner, and
// fee+ownerDue always equals amount.
func (s Schedule) Split(amount *big.Int) (fee *big.Int, ownerDue *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if s.Denominator == 0 || s.Numerator == 0 {
		return big.NewInt(0), new(big.Int).Set(amount)
	}
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(s.Numerator))
	fee.Quo(fee, new(big.Int).SetUint64(s.Denominator))
	if fee.Cmp(amount) > 0 {
		fee.Set(amount)
	}
	ownerDue = new(big.Int).Sub(amount, fee)
	return fee, ownerDue
}

// Rate renders the fee fraction, e.g. "25/1000".
func (s Schedule) Rate() string {
	return fmt.Sprintf("%d/%d", s.Numerator, s.Denominator)
}
