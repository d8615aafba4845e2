// Package amount converts between human-entered token amounts and the
// 18-decimal fixed-point integers contracts expect.
package amount

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// Decimals is the token precision.
const Decimals = 18

var limbMask = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// ToFixedPoint converts a decimal string into its fixed-point integer
// (value × 10^18). It fails with domain.ErrPrecision instead of truncating.
func ToFixedPoint(s string) (*uint256.Int, error) {
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return DecimalToFixedPoint(d)
}

// Parse parses a non-negative decimal amount.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", domain.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount %s", domain.ErrInvalidAmount, s)
	}
	return d, nil
}

// DecimalToFixedPoint scales d by 10^18.
func DecimalToFixedPoint(d decimal.Decimal) (*uint256.Int, error) {
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", domain.ErrPrecision, d.String(), Decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s overflows 256 bits", domain.ErrInvalidAmount, d.String())
	}
	return v, nil
}

// FromFixedPoint converts a fixed-point integer back into a decimal amount.
func FromFixedPoint(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -Decimals)
}

// Limbs is a 256-bit value split into two 128-bit halves, the layout of a
// Cairo u256 argument.
type Limbs struct {
	Low  *uint256.Int
	High *uint256.Int
}

// Split divides v into its low and high 128-bit limbs.
func Split(v *uint256.Int) Limbs {
	return Limbs{
		Low:  new(uint256.Int).And(v, limbMask),
		High: new(uint256.Int).Rsh(v, 128),
	}
}

// Combine rebuilds a value from its limbs.
func Combine(l Limbs) (*uint256.Int, error) {
	if l.Low == nil || l.High == nil {
		return nil, fmt.Errorf("missing limb")
	}
	if l.Low.Gt(limbMask) || l.High.Gt(limbMask) {
		return nil, fmt.Errorf("limb exceeds 128 bits")
	}
	v := new(uint256.Int).Lsh(l.High, 128)
	return v.Or(v, l.Low), nil
}

// Calldata renders the limbs as hex felts, low first.
func (l Limbs) Calldata() []string {
	return []string{l.Low.Hex(), l.High.Hex()}
}

// ParseLimbs reads a u256 from two hex or decimal felts.
func ParseLimbs(low, high string) (*uint256.Int, error) {
	lo, err := parseFelt(low)
	if err != nil {
		return nil, fmt.Errorf("invalid low limb: %w", err)
	}
	hi, err := parseFelt(high)
	if err != nil {
		return nil, fmt.Errorf("invalid high limb: %w", err)
	}
	return Combine(Limbs{Low: lo, High: hi})
}

func parseFelt(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(normalizeHex(s))
	}
	return uint256.FromDecimal(s)
}

// uint256.FromHex rejects leading zeros, which nodes sometimes return.
func normalizeHex(s string) string {
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}

// Felt encodes a small integer as a hex felt.
func Felt(v uint64) string {
	return uint256.NewInt(v).Hex()
}
