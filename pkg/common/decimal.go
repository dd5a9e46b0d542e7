package common

import (
	"fmt"

	decimal2 "github.com/govalues/decimal"
)

// DECIMAL(w,s) values are stored as int64 coefficients scaled by 10^s.
// Arithmetic that needs rounding goes through govalues/decimal.

func DecimalFromInt64(coef int64, scale int) decimal2.Decimal {
	d, err := decimal2.New(coef, scale)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalToInt64 rounds d to scale and returns the scaled coefficient.
func DecimalToInt64(d decimal2.Decimal, scale int) (int64, bool) {
	whole, frac, ok := d.Round(scale).Int64(scale)
	if !ok {
		return 0, false
	}
	pow := int64(1)
	for i := 0; i < scale; i++ {
		pow *= 10
	}
	return whole*pow + frac, true
}

func DecimalString(coef int64, scale int) string {
	return DecimalFromInt64(coef, scale).String()
}

func ParseDecimal(s string, scale int) (int64, error) {
	d, err := decimal2.Parse(s)
	if err != nil {
		return 0, err
	}
	ret, ok := DecimalToInt64(d, scale)
	if !ok {
		return 0, fmt.Errorf("decimal %q out of range for scale %d", s, scale)
	}
	return ret, nil
}

// DecimalDiv returns sum/count rounded to scale.
func DecimalDiv(sum int64, count int64, scale int) (int64, error) {
	q, err := DecimalFromInt64(sum, scale).Quo(DecimalFromInt64(count, 0))
	if err != nil {
		return 0, err
	}
	ret, ok := DecimalToInt64(q, scale)
	if !ok {
		return 0, fmt.Errorf("decimal avg out of range")
	}
	return ret, nil
}
