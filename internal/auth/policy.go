// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

// PasswordPolicy decides whether a password is acceptable for a new account.
type PasswordPolicy interface {
	Check(password string) error
}

// Password policy defaults.
const (
	DefaultPasswordMinLength = 10
	DefaultPasswordSymbols   = "!@#$%"
)

// ComplexityPolicy requires a minimum length and at least one upper-case
// letter, lower-case letter, digit, and symbol from Symbols.
type ComplexityPolicy struct {
	MinLength int
	Symbols   string
}

// DefaultPasswordPolicy returns the policy the web client also enforces.
func DefaultPasswordPolicy() ComplexityPolicy {
	return ComplexityPolicy{MinLength: DefaultPasswordMinLength, Symbols: DefaultPasswordSymbols}
}

// Check implements PasswordPolicy.
func (p ComplexityPolicy) Check(password string) error {
	if len([]rune(password)) < p.MinLength {
		return errors.New("password is too short")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(p.Symbols, r):
			symbol = true
		}
	}

	switch {
	case !upper:
		return errors.New("password needs an upper-case letter")
	case !lower:
		return errors.New("password needs a lower-case letter")
	case !digit:
		return errors.New("password needs a digit")
	case !symbol:
		return errors.New("password needs one of " + p.Symbols)
	}
	return nil
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (in *RegisterInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)
}

// validate expects normalize to have run.
func (in *RegisterInput) validate(policy PasswordPolicy) error {
	//nolint:wrapcheck // callers wrap with the validation code
	return validation.ValidateStruct(in,
		validation.Field(&in.FirstName, validation.Required.Error("first name is required")),
		validation.Field(&in.LastName, validation.Required.Error("last name is required")),
		validation.Field(&in.Email, validation.Required.Error("email is required")),
		validation.Field(&in.Password,
			validation.Required.Error("password is required"),
			validation.By(policyRule(policy)),
		),
	)
}

type loginInput struct {
	Email    string
	Password string
}

func (in *loginInput) validate() error {
	//nolint:wrapcheck // callers wrap with the validation code
	return validation.ValidateStruct(in,
		validation.Field(&in.Email, validation.Required.Error("email is required")),
		validation.Field(&in.Password, validation.Required.Error("password is required")),
	)
}

func policyRule(policy PasswordPolicy) validation.RuleFunc {
	return func(value interface{}) error {
		password, _ := value.(string)
		if password == "" {
			return nil
		}
		return policy.Check(password)
	}
}
