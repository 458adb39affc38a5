package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"care-companion/internal/domain"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", envMap(nil))
	require.NoError(t, err)
	require.Equal(t, RuntimeHTTP, cfg.Runtime)
	require.Equal(t, ":5001", cfg.Server.Addr)
	require.Equal(t, BackendOllama, cfg.Model.Backend)
	require.Equal(t, "flan-t5-base", cfg.Model.Fallback)
	require.Equal(t, domain.GenerationParams{MaxNewTokens: 256, Temperature: 0.5, TopP: 0.9, RepetitionPenalty: 1.2}, cfg.GenerationParams())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:8080"
  write_timeout: 45s
model:
  backend: mock
  dir: ./model/flan_t5_healthcare/checkpoint-4000
  name: flan-t5-healthcare:4000
generation:
  max_new_tokens: 128
prompt:
  disclaimer: "Please consult your physician."
log:
  format: json
`)
	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, BackendMock, cfg.Model.Backend)
	require.Equal(t, "flan-t5-healthcare:4000", cfg.Model.Name)
	require.Equal(t, 128, cfg.Generation.MaxNewTokens)
	require.InDelta(t, 0.5, cfg.Generation.Temperature, 1e-9)
	require.Equal(t, "Please consult your physician.", cfg.TemplateConfig().Disclaimer)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "model:\n  name: from-file\n")
	cfg, err := load(path, envMap(map[string]string{
		"MODEL_NAME":     "from-env",
		"SERVER_ADDR":    ":9000",
		"TEMPERATURE":    "0.7",
		"MAX_NEW_TOKENS": "64",
		"MODEL_TIMEOUT":  "30s",
		"EXCHANGE_TABLE": "care-exchanges",
		"RUNTIME":        "LAMBDA",
	}))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Model.Name)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	require.Equal(t, 64, cfg.Generation.MaxNewTokens)
	require.Equal(t, 30*time.Second, cfg.Model.Timeout)
	require.Equal(t, "care-exchanges", cfg.Exchange.Table)
	require.Equal(t, RuntimeLambda, cfg.Runtime)
}

func TestLoad_UsesProcessEnv(t *testing.T) {
	t.Setenv("MODEL_BACKEND", "mock")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, BackendMock, cfg.Model.Backend)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad addr", env: map[string]string{"SERVER_ADDR": "5001"}, want: "server.addr"},
		{name: "bad runtime", env: map[string]string{"RUNTIME": "grpc"}, want: "runtime"},
		{name: "bad backend", env: map[string]string{"MODEL_BACKEND": "torch"}, want: "model.backend"},
		{name: "bad base url", env: map[string]string{"MODEL_BASE_URL": "localhost:11434"}, want: "model.base_url"},
		{name: "openai without key", env: map[string]string{"MODEL_BACKEND": "openai"}, want: "OPENAI_API_KEY"},
		{name: "bad int", env: map[string]string{"MAX_NEW_TOKENS": "lots"}, want: "MAX_NEW_TOKENS"},
		{name: "bad float", env: map[string]string{"TOP_P": "high"}, want: "TOP_P"},
		{name: "bad duration", env: map[string]string{"MODEL_TIMEOUT": "10"}, want: "MODEL_TIMEOUT"},
		{name: "temperature range", env: map[string]string{"TEMPERATURE": "3"}, want: "generation.temperature"},
		{name: "top_p range", env: map[string]string{"TOP_P": "1.5"}, want: "generation.top_p"},
		{name: "tokens range", env: map[string]string{"MAX_NEW_TOKENS": "0"}, want: "generation.max_new_tokens"},
		{name: "log format", env: map[string]string{"LOG_FORMAT": "xml"}, want: "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load("", envMap(tc.env))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad_OpenAIWithParamPrefix(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{"MODEL_BACKEND": "openai", "PARAM_PREFIX": "/care-companion/prod"}))
	require.NoError(t, err)
	require.Equal(t, "/care-companion/prod", cfg.OpenAI.ParamPrefix)
}

func TestLoad_LambdaSkipsAddrCheck(t *testing.T) {
	_, err := load("", envMap(map[string]string{"RUNTIME": "lambda", "SERVER_ADDR": "nonsense"}))
	require.NoError(t, err)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	require.ErrorContains(t, err, "read config file")

	_, err = load(writeConfig(t, "server: [unterminated"), envMap(nil))
	require.ErrorContains(t, err, "parse config file")
}
