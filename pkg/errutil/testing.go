// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err carries code. oops reports the deepest
// code in a wrap chain, which is the one auth.KindOf classifies.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertNoSecret asserts that none of secrets appears in the message or the
// oops context of err. Error context is rendered into logs and, in
// development, into response bodies.
func AssertNoSecret(t testing.TB, err error, secrets ...string) {
	t.Helper()
	require.Error(t, err)
	for _, secret := range secrets {
		assert.NotContains(t, err.Error(), secret, "secret leaked into error message")
		if oopsErr, ok := oops.AsOops(err); ok {
			for key, value := range oopsErr.Context() {
				assert.NotContains(t, fmt.Sprint(value), secret, "secret leaked into context key %q", key)
			}
		}
	}
}
