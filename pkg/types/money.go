package types

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount decoded leniently from upstream JSON. Numbers and
// numeric strings ("15.90") are accepted; null, blanks and anything
// non-numeric decode to zero instead of failing the surrounding payload.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// ParseMoney coerces raw text into an amount, yielding zero for non-numeric input.
func ParseMoney(raw string) Money {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Money{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Money{}
	}
	return Money{Decimal: d}
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		m.Decimal = decimal.Zero
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			m.Decimal = decimal.Zero
			return nil
		}
		*m = ParseMoney(text)
		return nil
	}
	*m = ParseMoney(string(data))
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.String())
}

// Display renders the amount with two fraction digits for presentation.
func (m Money) Display() string {
	return m.Decimal.StringFixed(2)
}
