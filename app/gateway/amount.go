package gateway

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// centsFromDecimal converts a gateway decimal amount (JSON number or
// string, e.g. "150.00") into integer cents without float rounding error.
func centsFromDecimal(raw json.Number) (int64, error) {
	trimmed := strings.TrimSpace(raw.String())
	if trimmed == "" {
		return 0, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, err
	}
	return value.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
