package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptyAmount is returned when an amount token has no digits left after cleanup.
	ErrEmptyAmount = errors.New("empty amount")

	// ErrAmountOverflow is returned for amounts above math.MaxInt64 whole units.
	ErrAmountOverflow = errors.New("amount out of range")
)

// amountCleaner drops thousands separators and the currency sign. The peso has
// no minor units, so neither '.' nor ',' is ever a decimal point.
var amountCleaner = strings.NewReplacer(".", "", ",", "", "$", "", " ", "")

// ParseAmount converts a locale-formatted amount token such as "$1.234.567"
// into whole currency units. Amounts are limited to math.MaxInt64; larger
// tokens fail with ErrAmountOverflow and the classifiers log them at WARN.
func ParseAmount(token string) (int64, error) {
	cleaned := amountCleaner.Replace(strings.TrimSpace(token))
	if cleaned == "" {
		return 0, ErrEmptyAmount
	}

	amount, err := strconv.ParseUint(cleaned, 10, 63)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("parsing amount %q: %w", token, ErrAmountOverflow)
	}
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", token, err)
	}
	return int64(amount), nil
}
