package config

import (
	"bytes"
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/agentgate/backend"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func load(t *testing.T, args []string, env map[string]string, envFile string) (*Config, error) {
	t.Helper()
	return Load(args, func(o *LoadOptions) {
		o.LookupEnv = envOf(env)
		o.EnvFile = envFile
		o.Output = &bytes.Buffer{}
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, nil, map[string]string{"OPENAI_API_KEY": "sk-test"}, "")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.BackendProvider)
	assert.Equal(t, "sk-test", cfg.BackendAPIKey)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultLLM)
	assert.Equal(t, "passthrough", cfg.DefaultAgent)
	assert.Equal(t, "0.0.0.0:11435", cfg.Addr())
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace())
	assert.Equal(t, stream.ToolEventsSuppress, cfg.ToolEventMode())
	assert.Nil(t, cfg.ModelInfo())
}

func TestLoad_MissingAPIKey(t *testing.T) {
	_, err := load(t, nil, nil, "")
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "backend_api_key is required")
}

func TestLoad_MockProviderNeedsNoKey(t *testing.T) {
	cfg, err := load(t, []string{"--backend_provider", "mock"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, backend.ProviderMock, cfg.Backend().Provider)
}

func TestLoad_Precedence(t *testing.T) {
	file := writeFile(t, "config.yaml", `
backend_api_key: ${SECRET}
server_port: 9000
default_llm: from-file
default_agent: from-file
server_host: 127.0.0.1
`)
	envFile := writeFile(t, ".env", "DEFAULT_AGENT=from-dotenv\nDEFAULT_LLM=from-dotenv\nSERVER_HOST=10.0.0.1\n")
	env := map[string]string{
		"SECRET":      "sk-expanded",
		"CONFIG_FILE": file,
		"DEFAULT_LLM": "from-env",
	}

	cfg, err := load(t, []string{"--default_agent=from-flag"}, env, envFile)
	require.NoError(t, err)

	assert.Equal(t, "sk-expanded", cfg.BackendAPIKey)
	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, "10.0.0.1", cfg.ServerHost)
	assert.Equal(t, "from-env", cfg.DefaultLLM)
	assert.Equal(t, "from-flag", cfg.DefaultAgent)
}

func TestLoad_ConfigFlag(t *testing.T) {
	file := writeFile(t, "config.yaml", "backend_provider: mock\ntool_events: comment\n")

	cfg, err := load(t, []string{"--config", file}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, stream.ToolEventsComment, cfg.ToolEventMode())
}

func TestLoad_BadFile(t *testing.T) {
	_, err := load(t, []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")

	bad := writeFile(t, "bad.yaml", "server_port: [1, 2\n")
	_, err = load(t, []string{"--config", bad}, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_BoolFlagsAndEnv(t *testing.T) {
	cfg, err := load(t, []string{"--debug_log"}, map[string]string{"BACKEND_PROVIDER": "mock"}, "")
	require.NoError(t, err)
	assert.True(t, cfg.DebugLog)
	assert.Equal(t, logging.LogLevelDebug, cfg.Logging().Level)

	cfg, err = load(t, nil, map[string]string{"BACKEND_PROVIDER": "mock", "DEBUG_LOG": "yes"}, "")
	require.NoError(t, err)
	assert.True(t, cfg.DebugLog)

	_, err = load(t, nil, map[string]string{"BACKEND_PROVIDER": "mock", "SERVER_PORT": "abc"}, "")
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Problems[0], "SERVER_PORT")
}

func TestLoad_ModelInfo(t *testing.T) {
	args := []string{
		"--backend_provider=mock",
		"--default_llm=llama3",
		"--default_llm_family=llama",
		"--default_llm_function_calling=false",
		"--default_llm_json_output=true",
		"--default_llm_vision=false",
	}
	cfg, err := load(t, args, nil, "")
	require.NoError(t, err)

	info := cfg.ModelInfo()
	require.NotNil(t, info)
	assert.Equal(t, "llama3", info.Name)
	assert.Equal(t, "llama", info.Family)
	assert.False(t, info.SupportsTools)
	assert.True(t, info.SupportsJSON)
	assert.Equal(t, "llama", cfg.Backend().Info.Family)
}

func TestLoad_PartialModelInfo(t *testing.T) {
	_, err := load(t, []string{"--backend_provider=mock", "--default_llm_family=llama"}, nil, "")
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "missing: default_llm_function_calling, default_llm_json_output, default_llm_vision")
}

func TestLoad_Help(t *testing.T) {
	_, err := load(t, []string{"-h"}, nil, "")
	assert.True(t, errors.Is(err, flag.ErrHelp))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.BackendProvider = "cohere"
	cfg.ServerPort = 70000
	cfg.LogFormat = "xml"
	cfg.ToolEvents = "inline"
	cfg.DefaultAgent = ""

	err := cfg.Validate()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Problems, 5)
}

func TestConfig_LogValueMasksKey(t *testing.T) {
	cfg := Default()
	cfg.BackendAPIKey = "sk-very-secret"

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("config", "config", cfg)

	assert.NotContains(t, buf.String(), "sk-very-secret")
	assert.Contains(t, buf.String(), "config.backend_api_key=****")
}
