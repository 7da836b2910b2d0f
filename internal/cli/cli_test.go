package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	opts, shouldExit, err := Parse("quickcall", "control panel", nil, out)

	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Empty(t, opts.ConfigPath)
	assert.Empty(t, opts.Listen)
	assert.Empty(t, opts.LogLevel)
}

func TestParse_AllFlags(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	args := []string{"--config", "panel.hcl", "--listen", ":7000", "--log-format", "text", "--log-level", "DEBUG"}
	opts, shouldExit, err := Parse("quickcall", "control panel", args, out)

	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "panel.hcl", opts.ConfigPath)
	assert.Equal(t, ":7000", opts.Listen)
	assert.Equal(t, "text", opts.LogFormat)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestParse_ShorthandConfig(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	opts, _, err := Parse("quickcall", "control panel", []string{"-c", "alt.hcl"}, out)

	require.NoError(t, err)
	assert.Equal(t, "alt.hcl", opts.ConfigPath)
}

func TestParse_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	_, shouldExit, err := Parse("quickcall-bridge", "token and call companion", []string{"-h"}, out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidValues(t *testing.T) {
	t.Parallel()

	t.Run("log format", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}
		_, _, err := Parse("quickcall", "control panel", []string{"--log-format", "xml"}, out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("log level", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}
		_, _, err := Parse("quickcall", "control panel", []string{"--log-level", "loud"}, out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "invalid log-level")
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}
		_, _, err := Parse("quickcall", "control panel", []string{"--nope"}, out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "flag provided but not defined")
	})
}
