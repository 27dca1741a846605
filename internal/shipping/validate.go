package shipping

import (
	"errors"
	"fmt"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Path is where customers are sent to complete their address.
const Path = "/shipping"

var ErrIncomplete = errors.New("shipping info incomplete")

var validate = validator.New()

// Validate reports ErrIncomplete, wrapped with the failing fields, when any
// shipping field is missing or malformed.
func Validate(info domain.ShippingInfo) error {
	if err := validate.Struct(info); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: %v", ErrIncomplete, fields)
		}
		return err
	}
	return nil
}

// Validator guards pages that need a complete shipping address.
type Validator struct{}

// Redirect returns the path to send the customer to, or "" when info is complete.
func (Validator) Redirect(info domain.ShippingInfo) string {
	if Validate(info) != nil {
		return Path
	}
	return ""
}
