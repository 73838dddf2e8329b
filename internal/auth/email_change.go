// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Verification code configuration.
const (
	EmailChangeCodeTTL = 10 * time.Minute
	codeMin            = 100000
	codeMax            = 999999
)

// EmailChangeRequest is the pending verification record held in a session.
type EmailChangeRequest struct {
	Code      string    `json:"code"`
	NewEmail  string    `json:"new_email"`
	OldEmail  string    `json:"old_email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEmailChangeRequest creates a validated request.
func NewEmailChangeRequest(code, newEmail, oldEmail string, expiresAt time.Time) (*EmailChangeRequest, error) {
	if !isVerificationCode(code) {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_CODE_FORMAT").Errorf("verification code must be 6 digits")
	}
	if newEmail == "" || oldEmail == "" {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_EMAIL").Errorf("old and new email are required")
	}
	if newEmail == oldEmail {
		return nil, oops.Code("EMAIL_CHANGE_SAME_EMAIL").Errorf("new email must differ from old email")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &EmailChangeRequest{
		Code:      code,
		NewEmail:  newEmail,
		OldEmail:  oldEmail,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt reports whether t is strictly past the expiry.
func (r *EmailChangeRequest) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// Matches compares a submitted code after trimming surrounding whitespace.
func (r *EmailChangeRequest) Matches(input string) bool {
	input = strings.TrimSpace(input)
	return subtle.ConstantTimeCompare([]byte(input), []byte(r.Code)) == 1
}

// CodeGenerator produces verification codes.
type CodeGenerator func() (string, error)

// GenerateVerificationCode draws uniformly from [100000, 999999].
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", oops.Code("EMAIL_CHANGE_CODE_FAILED").Wrap(err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

func isVerificationCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
