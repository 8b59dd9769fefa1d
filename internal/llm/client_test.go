// internal/llm/client_test.go
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c := New("")

	assert.Equal(t, DefaultURL, c.url)
	assert.Equal(t, DefaultModel, c.model)
	assert.Equal(t, DefaultTemperature, c.temperature)
	assert.Equal(t, DefaultMaxTokens, c.maxTokens)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestNew_Options(t *testing.T) {
	c := New("http://host/v1/chat/completions/",
		WithModel("m"), WithTemperature(0.5), WithMaxTokens(10), WithTimeout(time.Second), WithSystemPrompt("p"))

	assert.Equal(t, "http://host/v1/chat/completions", c.url)
	assert.Equal(t, "m", c.model)
	assert.Equal(t, 0.5, c.temperature)
	assert.Equal(t, 10, c.maxTokens)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.Equal(t, "p", c.systemPrompt)
}

func TestDecide_Success(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"}}]}`))
	}))
	defer server.Close()

	c := New(server.URL)
	reply, err := c.Decide(context.Background(), []byte{0x89, 'P', 'N', 'G'}, `{"command":"fetch"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, reply)

	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, false, got["stream"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.InDelta(t, DefaultTemperature, got["temperature"], 1e-9)

	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 3)
	assert.Equal(t, `context: {"command":"fetch"}`, parts[0].(map[string]any)["text"])
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"]
	assert.Equal(t, "data:image/png;base64,iVBORw==", img)
}

func TestDecide_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "model not loaded"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "garbage", status: http.StatusOK, body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL).Decide(context.Background(), nil, "{}")
			assert.Error(t, err)
		})
	}
}

func TestDecide_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := New(server.URL).Decide(ctx, nil, "{}")
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Decide did not return after cancel")
	}
}

func TestHealthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, New(server.URL+"/v1/chat/completions").Healthcheck(context.Background()))
	assert.Error(t, New(server.URL+"/other").Healthcheck(context.Background()))
	assert.Error(t, New("http://localhost:59999/v1/chat/completions").Healthcheck(context.Background()))
}
