package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"care-companion/internal/config"
	"care-companion/internal/integrations/openai"
	"care-companion/internal/model"
	"care-companion/internal/usecase"
)

func mockConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Model.Backend = config.BackendMock
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_ServesChatAndHealth(t *testing.T) {
	app, err := newApp(context.Background(), mockConfig(), discardLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	_ = res.Body.Close()
	require.Equal(t, false, health["model_loaded"])

	res, err = http.Post(srv.URL+"/api/ai/chat", "application/json", strings.NewReader(`{"message":"I have a sore throat"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out struct {
		Success bool   `json:"success"`
		Reply   string `json:"reply"`
		Model   string `json:"model"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.True(t, out.Success)
	require.Equal(t, model.MockReply+"\n\n"+usecase.DefaultDisclaimer, out.Reply)
	require.Equal(t, "flan-t5-healthcare", out.Model)

	res, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	require.Equal(t, true, health["model_loaded"])
	require.Equal(t, "local", health["source"])
}

func TestNewApp_RejectsInvalidTemplate(t *testing.T) {
	cfg := mockConfig()
	cfg.Prompt.Disclaimer = "This is not medical advice."
	_, err := newApp(context.Background(), cfg, discardLogger())
	require.ErrorContains(t, err, "prompt template")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	app, err := newApp(context.Background(), mockConfig(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	require.True(t, app.service.Health(context.Background()).ModelLoaded)
}

func TestRun_ListenError(t *testing.T) {
	cfg := mockConfig()
	cfg.Server.Addr = "256.0.0.1:99999"
	app, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	require.Error(t, app.Run(context.Background()))
}

func TestAPIKeySource(t *testing.T) {
	cfg := mockConfig()
	keys, err := apiKeySource(context.Background(), cfg, &awsLoader{})
	require.NoError(t, err)
	require.Nil(t, keys)

	cfg.Model.Backend = config.BackendOpenAI
	cfg.OpenAI.APIKey = "sk-env"
	keys, err = apiKeySource(context.Background(), cfg, &awsLoader{})
	require.NoError(t, err)
	require.Equal(t, openai.StaticKey("sk-env"), keys)
}

func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"k":"v"`)

	buf.Reset()
	initLogger(config.LogConfig{Level: "debug"}, &buf).Debug("text handler")
	require.Contains(t, buf.String(), "msg=\"text handler\"")
}
