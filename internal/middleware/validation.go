package middleware

import (
	"errors"
	"regexp"
	"time"
	"unicode/utf8"
)

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// ValidateExternalID validates a channel message id.
func ValidateExternalID(id string) error {
	if len(id) == 0 {
		return errors.New("external id cannot be empty")
	}
	if len(id) > 256 {
		return errors.New("external id exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("external id must be valid UTF-8")
	}
	return nil
}

// ValidateAccountID validates a billing account id.
func ValidateAccountID(id string) error {
	if len(id) == 0 {
		return errors.New("account id cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("account id exceeds maximum length")
	}
	return nil
}

// ValidateCountryCode validates an ISO 3166-1 alpha-2 country code.
func ValidateCountryCode(code string) error {
	if !countryCodePattern.MatchString(code) {
		return errors.New("country must be a two-letter uppercase code")
	}
	return nil
}

// ValidateDateParam validates a YYYY-MM-DD query parameter and returns the
// parsed UTC day.
func ValidateDateParam(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return t.UTC(), nil
}

// ValidateDayRange validates a number-of-days query parameter.
func ValidateDayRange(days, max int) error {
	if days < 1 {
		return errors.New("days must be at least 1")
	}
	if days > max {
		return errors.New("days exceeds maximum range")
	}
	return nil
}
