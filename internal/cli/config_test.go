// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
)

func TestRunConfig_InitWritesDefaults(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	var out bytes.Buffer
	require.NoError(t, RunConfig(Args{Subcommand: "init", ConfigPath: path}, &out))
	assert.Contains(t, out.String(), path)

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestRunConfig_InitRefusesOverwrite(t *testing.T) {
	isolateHome(t)
	path := writeConfig(t, "[endpoint]\nmodel = \"mistral\"\n")

	err := RunConfig(Args{Subcommand: "init", ConfigPath: path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "mistral")

	require.NoError(t, RunConfig(Args{Subcommand: "init", ConfigPath: path, Force: true}, &bytes.Buffer{}))
	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Endpoint.Model, cfg.Endpoint.Model)
}

func TestRunConfig_Show(t *testing.T) {
	isolateHome(t)
	path := writeConfig(t, "[endpoint]\nmodel = \"mistral\"\n")

	var out bytes.Buffer
	require.NoError(t, RunConfig(Args{Subcommand: "show", ConfigPath: path}, &out))
	assert.Contains(t, out.String(), "# loaded from "+path)
	assert.Contains(t, out.String(), `model = "mistral"`)
}

func TestRunConfig_ShowJSON(t *testing.T) {
	isolateHome(t)

	var out bytes.Buffer
	require.NoError(t, RunConfig(Args{Subcommand: "show", JSON: true}, &out))

	var resp struct {
		Data struct {
			Path   string        `json:"config_path"`
			Exists bool          `json:"exists"`
			Config config.Config `json:"config"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.False(t, resp.Data.Exists)
	assert.Empty(t, resp.Data.Path)
	assert.Equal(t, config.Default().Endpoint.URL, resp.Data.Config.Endpoint.URL)
}

func TestRunConfig_Path(t *testing.T) {
	home := isolateHome(t)

	var out bytes.Buffer
	require.NoError(t, RunConfig(Args{Subcommand: "path"}, &out))
	assert.Equal(t, filepath.Join(home, ".dxchat", "config.toml"), strings.TrimSpace(out.String()))
}

func TestRunConfig_UnknownSubcommand(t *testing.T) {
	err := RunConfig(Args{Subcommand: "edit"}, &bytes.Buffer{})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}
