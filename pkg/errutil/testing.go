// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package errutil

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireOops fails the test unless err is (or wraps) an oops error.
func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	var oopsErr oops.OopsError
	require.True(t, errors.As(err, &oopsErr), "expected oops error in chain, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode checks the deepest oops code on err.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error with code %q, got nil", code)
		return
	}
	assert.Equal(t, code, requireOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext checks one oops context entry on err.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	if assert.Contains(t, ctx, key) {
		assert.Equal(t, value, ctx[key], "context %q", key)
	}
}

// AssertErrorIs checks that err wraps target and carries code.
func AssertErrorIs(t *testing.T, err, target error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, target)
	AssertErrorCode(t, err, code)
}
