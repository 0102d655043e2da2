// Package validation provides input validation helpers for the screening API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxJustificationLength caps appeal justification text.
const MaxJustificationLength = 4000

var (
	// accountIDRegex validates engine-issued account identifiers
	accountIDRegex = regexp.MustCompile(`^acct_[a-f0-9]{24}$`)
	// amountRegex validates positive decimal amounts
	amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	// currencyRegex validates ISO 4217 style currency codes
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccountID checks if a string is a well-formed account identifier.
func IsValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// IsValidAmount checks that amount is a well-formed positive decimal number.
func IsValidAmount(amount string) bool {
	return amountRegex.MatchString(strings.TrimSpace(amount))
}

// IsValidCurrency checks that a currency code is three uppercase letters.
func IsValidCurrency(code string) bool {
	return currencyRegex.MatchString(code)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)

	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}
