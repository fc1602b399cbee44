package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Policy is the configurable password strength contract. Validation is pure:
// no state, no side effects.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy returns the baseline rules applied when none are configured.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		MaxLength:    72,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Validate checks the password against every rule and reports all violations
// at once so callers can surface the full list.
func (p Policy) Validate(password string) error {
	var violations []string
	runes := []rune(password)
	if p.MinLength > 0 && len(runes) < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && len(runes) > p.MaxLength {
		violations = append(violations, fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if p.RequireUpper && !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if p.RequireSpecial && !hasSpecial {
		violations = append(violations, "must contain a special character")
	}
	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
