// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Endpoint.URL)
	assert.Equal(t, "llama3.2", cfg.Endpoint.Model)
	assert.Equal(t, 10, cfg.Conversation.HistoryWindow)
	assert.False(t, cfg.Conversation.Streaming)
	assert.Equal(t, "alert", cfg.Conversation.FailurePolicy)
	assert.Zero(t, cfg.Timeout())
	assert.Equal(t, "127.0.0.1:8787", cfg.Addr())
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[endpoint]
url = "http://gpu-box:11434/"
model = "mistral"
timeout_secs = 30

[conversation]
history_window = 4
streaming = true
failure_policy = "message"

[server]
allowed_origins = ["https://chat.example.com"]
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Endpoint.URL, "trailing slash trimmed")
	assert.Equal(t, "mistral", cfg.Endpoint.Model)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, "ollama", cfg.Endpoint.ResponseSchema, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Conversation.HistoryWindow)
	assert.True(t, cfg.Conversation.Streaming)
	assert.Equal(t, "message", cfg.Conversation.FailurePolicy)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8787, cfg.Server.Port)
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"endpoint":{"model":"phi3","response_schema":"openai"}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "phi3", cfg.Endpoint.Model)
	assert.Equal(t, "openai", cfg.Endpoint.ResponseSchema)
	assert.Equal(t, Default().Server.AllowedOrigins, cfg.Server.AllowedOrigins)
}

func TestLoadFromPath_UnknownKey(t *testing.T) {
	path := writeFile(t, "config.toml", "[endpoint]\nmodle = \"typo\"\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint.modle")
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", os.Getenv("HOME"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Endpoint, cfg.Endpoint)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Endpoint.URL = "not a url" }, "endpoint.url"},
		{"empty model", func(c *Config) { c.Endpoint.Model = "" }, "endpoint.model"},
		{"negative timeout", func(c *Config) { c.Endpoint.TimeoutSecs = -1 }, "endpoint.timeout_secs"},
		{"unknown schema", func(c *Config) { c.Endpoint.ResponseSchema = "anthropic" }, "endpoint.response_schema"},
		{"zero window", func(c *Config) { c.Conversation.HistoryWindow = 0 }, "conversation.history_window"},
		{"unknown policy", func(c *Config) { c.Conversation.FailurePolicy = "retry" }, "conversation.failure_policy"},
		{"port range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty origin", func(c *Config) { c.Server.AllowedOrigins = []string{""} }, "server.allowed_origins[0]"},
		{"unknown theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "got %T", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
			assert.NotEmpty(t, verrs[0].Message)
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	errs := ValidateErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	assert.Equal(t, "a: bad; b: worse", errs.Error())
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DXCHAT_ENDPOINT", "http://other:11434")
	t.Setenv("DXCHAT_MODEL", "qwen2.5")
	t.Setenv("DXCHAT_HISTORY_WINDOW", "25")
	t.Setenv("DXCHAT_STREAMING", "true")
	t.Setenv("DXCHAT_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())

	assert.Equal(t, "http://other:11434", cfg.Endpoint.URL)
	assert.Equal(t, "qwen2.5", cfg.Endpoint.Model)
	assert.Equal(t, 25, cfg.Conversation.HistoryWindow)
	assert.True(t, cfg.Conversation.Streaming)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "alert", cfg.Conversation.FailurePolicy, "unset variables leave values alone")
}

func TestApplyEnvOverrides_BeatsFile(t *testing.T) {
	path := writeFile(t, "config.toml", "[endpoint]\nmodel = \"from-file\"\n")
	t.Setenv("DXCHAT_MODEL", "from-env")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Endpoint.Model)
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("DXCHAT_HISTORY_WINDOW", "lots")

	err := Default().ApplyEnvOverrides()
	assert.Error(t, err)
}

// =============================================================================
// SAVE
// =============================================================================

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.toml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := Default()
			cfg.Endpoint.Model = "saved-model"
			cfg.Conversation.Streaming = true
			require.NoError(t, Save(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			if filepath.Separator == '/' {
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}

			loaded, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestString_IsTOML(t *testing.T) {
	out := Default().String()

	assert.Contains(t, out, "[endpoint]")
	assert.Contains(t, out, `model = "llama3.2"`)
	assert.Contains(t, out, "history_window = 10")
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := writeFile(t, "config.toml", "[endpoint]\nmodel = \"before\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	require.NoError(t, WatchWithDebounce(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	}))

	cfg := Default()
	cfg.Endpoint.Model = "after"
	require.NoError(t, Save(cfg, path))

	select {
	case got := <-reloaded:
		assert.Equal(t, "after", got.Endpoint.Model)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "gone", "config.toml"), func(*Config, error) {})
	assert.Error(t, err)
}
