package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConfigCmd(t *testing.T, root *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := NewConfigCommand(root)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestConfigValidate_Valid(t *testing.T) {
	path := writeConfig(t, "runner:\n  mode: immediate\n")

	out, err := runConfigCmd(t, &RootOptions{Format: "text"}, "validate", path)
	require.NoError(t, err)
	assert.Equal(t, path+": valid\n", out)
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := writeConfig(t, "store:\n  max_pending: 0\n")

	out, err := runConfigCmd(t, &RootOptions{Format: "json"}, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFIG_INVALID", resp.Error.Code)
}

func TestConfigValidate_InvalidThroughRoot(t *testing.T) {
	path := writeConfig(t, "store:\n  max_pending: 0\n")

	// The root silences cobra's own error and usage output, so a shared
	// stream carries exactly one JSON document.
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--format", "json", "config", "validate", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFIG_INVALID", resp.Error.Code)
	assert.NotContains(t, buf.String(), "Usage:")
}

func TestConfigShow_Defaults(t *testing.T) {
	out, err := runConfigCmd(t, &RootOptions{Format: "text"}, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_pending: 65536")
	assert.Contains(t, out, "mode: delayed")
	assert.Contains(t, out, "level: info")
}

func TestConfigShow_FromFile(t *testing.T) {
	path := writeConfig(t, "runner:\n  workers: 3\nlog:\n  level: debug\n")

	out, err := runConfigCmd(t, &RootOptions{Format: "json", ConfigPath: path}, "show")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Runner struct {
				Mode    string `json:"mode"`
				Workers int    `json:"workers"`
			} `json:"runner"`
			Log struct {
				Level string `json:"level"`
			} `json:"log"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "delayed", resp.Data.Runner.Mode)
	assert.Equal(t, 3, resp.Data.Runner.Workers)
	assert.Equal(t, "debug", resp.Data.Log.Level)
}

func TestConfigShow_MissingFile(t *testing.T) {
	_, err := runConfigCmd(t, &RootOptions{Format: "text", ConfigPath: "does-not-exist.yaml"}, "show")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
