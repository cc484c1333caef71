package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

// FallbackCurrency applies when neither the request nor the organization names a currency.
const FallbackCurrency = "USD"

var validate = validator.New()

// NormalizeCurrency upper-cases code and checks it is an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := validate.Var(code, "required,iso4217"); err != nil {
		return "", utils.InvalidInput("unknown currency %q", code)
	}
	return code, nil
}

// ResolveCurrency picks the explicit currency, else the organization default, else FallbackCurrency.
func ResolveCurrency(explicit *string, org *Organization) (string, error) {
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		return NormalizeCurrency(*explicit)
	}
	if org != nil && org.DefaultCurrency != "" {
		return NormalizeCurrency(org.DefaultCurrency)
	}
	return FallbackCurrency, nil
}
