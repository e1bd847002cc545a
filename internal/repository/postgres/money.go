package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/diaspomoney/payments/internal/domain/payment"
)

// Amounts are stored as NUMERIC(19,2) and travel as text so no precision is
// lost on the way in or out.

func numericStringToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	return int64(math.Round(f * 100)), nil
}

func centsToNumericString(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func amountToNumeric(amount float64) string {
	return centsToNumericString(payment.ToMinorUnits(amount))
}

func numericToAmount(s string) (float64, error) {
	cents, err := numericStringToCents(s)
	if err != nil {
		return 0, err
	}
	return payment.FromMinorUnits(cents), nil
}
