// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserErrorFormat(t *testing.T) {
	cause := errors.New("permission denied")
	ue := NewConfigError("Cannot bind socket", "address already in use", "stop the other instance first", cause)

	require.Equal(t, "Cannot bind socket: address already in use: permission denied", ue.Error())

	formatted := ue.Format(false)
	require.Contains(t, formatted, "Cannot bind socket")
	require.Contains(t, formatted, "address already in use")
	require.Contains(t, formatted, "cause: permission denied")
	require.Contains(t, formatted, "stop the other instance first")
}

func TestUserErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	ue := NewRegexError(`(`, cause)
	require.ErrorIs(t, ue, cause)
	require.Equal(t, KindRegex, ue.Kind)
}

func TestFatalErrorExits(t *testing.T) {
	var code int
	old := exit
	exit = func(c int) { code = c }
	defer func() { exit = old }()

	FatalError(NewTenantError("unknown pid", "pid 9999 is not allocated"), false)
	require.Equal(t, 1, code)
}
