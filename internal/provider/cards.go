package provider

import (
	"strings"
	"time"
	"unicode"

	"github.com/abdotop/cartpay/internal/domain"
)

// Test card numbers with a fixed outcome.
const (
	CardSucceeds          = "4242424242424242"
	CardDeclined          = "4000000000000002"
	CardInsufficientFunds = "4000000000009995"
	CardRequiresAction    = "4000002500003155"
)

const (
	ErrTypeCard           = "card_error"
	ErrTypeInvalidRequest = "invalid_request_error"
)

func cardError(code, message string) *domain.PaymentError {
	return &domain.PaymentError{Type: ErrTypeCard, Code: code, Message: message}
}

// luhn reports whether number passes the mod 10 checksum.
func luhn(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func normalizeNumber(n string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, n)
}

// evaluateCard decides the outcome of confirming with card at time now.
// It returns the resulting intent status, or a card error when declined.
func evaluateCard(card domain.Card, now time.Time) (string, *domain.PaymentError) {
	number := normalizeNumber(card.Number)
	if !luhn(number) {
		return "", cardError("incorrect_number", "Your card number is incorrect.")
	}

	if card.ExpMonth < 1 || card.ExpMonth > 12 {
		return "", cardError("invalid_expiry_month", "Your card's expiration month is invalid.")
	}
	year := card.ExpYear
	if year < 100 {
		year += 2000
	}
	// valid through the last day of the expiry month
	expiry := time.Date(year, time.Month(card.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.Before(expiry) {
		return "", cardError("expired_card", "Your card has expired.")
	}

	if len(card.CVC) < 3 || len(card.CVC) > 4 || strings.IndexFunc(card.CVC, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return "", cardError("incorrect_cvc", "Your card's security code is incorrect.")
	}

	switch number {
	case CardDeclined:
		return "", cardError("card_declined", "Your card was declined.")
	case CardInsufficientFunds:
		return "", cardError("insufficient_funds", "Your card has insufficient funds.")
	case CardRequiresAction:
		return domain.PaymentStatusRequiresAction, nil
	default:
		return domain.PaymentStatusSucceeded, nil
	}
}
