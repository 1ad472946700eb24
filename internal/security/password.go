package security

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Interactive-login cost. Fast hashes are not acceptable for stored
// credentials, so everything goes through bcrypt.
const BcryptCost = 12

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), BcryptCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
// Never compare hashes with ==; bcrypt does its own constant-time check.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// ValidPassword reports whether a password meets the minimum rules:
// at least 8 characters, at least one letter, at least one digit.
// No upper bound and no special-character requirement.
func ValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}

	var hasLetter, hasDigit bool

	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	return hasLetter && hasDigit
}

// ValidEmailDomain reports whether the email belongs to the organization.
// Case-insensitive suffix match against "@<domain>".
func ValidEmailDomain(email, domain string) bool {
	if email == "" || domain == "" {
		return false
	}

	return strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(domain))
}
