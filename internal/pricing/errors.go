package pricing

import "fmt"

// MathErrorKind classifies price-calculation failures.
type MathErrorKind string

const (
	// KindZeroReserve means one side of the pair holds nothing, leaving the
	// price undefined (not zero).
	KindZeroReserve MathErrorKind = "zero_reserve"

	// KindOverflow means decimal scaling pushed a reserve past 256 bits.
	KindOverflow MathErrorKind = "overflow"

	// KindPrecisionLoss means an operand exceeds the 128-bit range that can
	// be carried into a float64 division without losing significant digits.
	KindPrecisionLoss MathErrorKind = "precision_loss"
)

// MathError is returned for any failure during price calculation. It is
// always fatal to the single observation being priced.
type MathError struct {
	Kind   MathErrorKind
	Detail string
}

func (e *MathError) Error() string {
	return fmt.Sprintf("math error (%s): %s", e.Kind, e.Detail)
}

func newMathError(kind MathErrorKind, format string, args ...any) *MathError {
	return &MathError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
