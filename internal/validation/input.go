// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	minTrackingLen = 4
	maxTrackingLen = 64
	maxStock       = 1_000_000
)

var (
	// ErrInvalidPrice возвращается для отрицательной, нечисловой или слишком точной цены.
	ErrInvalidPrice = errors.New("price must be a non-negative amount with at most two decimal places")
	// ErrInvalidStock возвращается для отрицательного или нереального остатка.
	ErrInvalidStock = errors.New("stock quantity must be between 0 and 1000000")
)

// IsValidTrackingNumber проверяет трек-номер: латинские буквы, цифры, дефис и пробел, от 4 до 64 символов.
func IsValidTrackingNumber(number string) bool {
	number = strings.TrimSpace(number)
	if len(number) < minTrackingLen || len(number) > maxTrackingLen {
		return false
	}

	for _, ch := range number {
		switch {
		case ch < unicode.MaxASCII && (unicode.IsLetter(ch) || unicode.IsDigit(ch)):
		case ch == '-' || ch == ' ':
		default:
			return false
		}
	}
	return true
}

// ParsePrice разбирает цену из строки.
func ParsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if d.IsNegative() || !d.Equal(d.Round(2)) {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

// ValidateStock проверяет значение остатка.
func ValidateStock(n int) error {
	if n < 0 || n > maxStock {
		return ErrInvalidStock
	}
	return nil
}
