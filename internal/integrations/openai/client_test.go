package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"care-companion/internal/domain"
)

// ---------------------------------------------------------------------------
// URL helpers
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestModelURL_EscapesName(t *testing.T) {
	require.Equal(t, "http://localhost:8080/v1/models/gpt-4o-mini", modelURL("http://localhost:8080", "gpt-4o-mini"))
	require.Equal(t, "https://api.openai.com/v1/models/org%2Fmodel", modelURL("", "org/model"))
}

func TestFrequencyPenalty(t *testing.T) {
	require.Nil(t, frequencyPenalty(0))
	require.InDelta(t, 0.2, *frequencyPenalty(1.2), 1e-9)
	require.InDelta(t, 0.0, *frequencyPenalty(1.0), 1e-9)
	require.InDelta(t, 2.0, *frequencyPenalty(5), 1e-9)
}

// ---------------------------------------------------------------------------
// NewClient / keys
// ---------------------------------------------------------------------------

func TestNewClient_NilKeySource(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorContains(t, err, "nil")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(StaticKey("sk"))
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.NotNil(t, c.httpClient)
}

func TestStaticKey_Empty(t *testing.T) {
	_, err := StaticKey(" ").APIKey(context.Background())
	require.ErrorContains(t, err, "empty")
}

type failingKeys struct{}

func (failingKeys) APIKey(context.Context) (string, error) { return "", errors.New("ssm unavailable") }

// ---------------------------------------------------------------------------
// Client.Generate
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		StaticKey("sk-test"),
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func testParams() domain.GenerationParams {
	return domain.GenerationParams{MaxNewTokens: 256, Temperature: 0.5, TopP: 0.9, RepetitionPenalty: 1.2}
}

func TestClient_Generate_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var got chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Equal(t, "gpt-mock", got.Model)
		require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "User: hi\nAI:"}}, got.Messages)
		require.Equal(t, 256, got.MaxTokens)
		require.InDelta(t, 0.5, *got.Temperature, 1e-9)
		require.InDelta(t, 0.9, *got.TopP, 1e-9)
		require.InDelta(t, 0.2, *got.FrequencyPenalty, 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "Rest and fluids." }
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Generate(context.Background(), "gpt-mock", "User: hi\nAI:", testParams())
	require.NoError(t, err)
	require.Equal(t, "Rest and fluids.", out)
}

func TestClient_Generate_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Generate(context.Background(), "gpt-mock", "p", testParams())
	require.ErrorContains(t, err, "unexpected status 429")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatusCode())
}

func TestClient_Generate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), "gpt-mock", "p", testParams())
	require.ErrorContains(t, err, "decode response")
}

func TestClient_Generate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), "gpt-mock", "p", testParams())
	require.ErrorContains(t, err, "no choices")
}

func TestClient_Generate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Generate(context.Background(), "gpt-mock", "p", testParams())
	require.ErrorContains(t, err, "request failed")
}

func TestClient_Generate_EmptyModel(t *testing.T) {
	c, err := NewClient(StaticKey("sk"))
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), " ", "p", testParams())
	require.ErrorContains(t, err, "model")
}

func TestClient_Generate_KeyError(t *testing.T) {
	c, err := NewClient(failingKeys{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "gpt-mock", "p", testParams())
	require.ErrorContains(t, err, "ssm unavailable")
}

// ---------------------------------------------------------------------------
// Client.Available
// ---------------------------------------------------------------------------

func TestClient_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path == "/v1/models/gpt-mock" {
			_, _ = w.Write([]byte(`{"id":"gpt-mock","object":"model"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.Available(context.Background(), "gpt-mock"))

	err := c.Available(context.Background(), "missing")
	require.ErrorContains(t, err, "unavailable")
	require.ErrorContains(t, err, "404")
}

func TestClient_Available_NetworkError(t *testing.T) {
	c, err := NewClient(StaticKey("sk"), WithBaseURL("http://127.0.0.1:1"), WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)
	require.Error(t, c.Available(context.Background(), "gpt-mock"))
}
