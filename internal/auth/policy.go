package auth

import "strings"

const (
	minPasswordLength = 8
	passwordSymbols   = "@$!%*?&"
)

// ValidatePasswordStrength checks the password against the account policy and
// returns every violation. An empty slice means the password is acceptable.
func ValidatePasswordStrength(password string) []string {
	var problems []string
	if len(password) < minPasswordLength {
		problems = append(problems, "password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	if !hasUpper {
		problems = append(problems, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		problems = append(problems, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		problems = append(problems, "password must contain at least one number")
	}
	if !hasSymbol {
		problems = append(problems, "password must contain at least one special character (@$!%*?&)")
	}
	return problems
}
