package openai

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
)

func outputTextResponse(text string) map[string]any {
	return map[string]any{
		"output": []any{
			map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "output_text", "text": text},
				},
			},
		},
	}
}

func TestComplete(t *testing.T) {
	t.Run("returns structured output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/responses", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-test", req["model"])

			_ = json.NewEncoder(w).Encode(outputTextResponse(`{"recommendations":["add rug"],"reasoning":"x"}`))
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL, APIKey: "sk-test", TextModel: "gpt-test"})
		res, err := c.Complete(t.Context(), "prompt", capabilities.RecommendationSchema("recs"))
		require.NoError(t, err)

		var out struct {
			Recommendations []string `json:"recommendations"`
		}
		require.NoError(t, res.Decode(&out))
		assert.Equal(t, []string{"add rug"}, out.Recommendations)
	})

	t.Run("repairs sloppy JSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(outputTextResponse("```json\n{\"recommendations\": [\"add rug\",],}\n```"))
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
		res, err := c.Complete(t.Context(), "prompt", capabilities.RecommendationSchema("recs"))
		require.NoError(t, err)
		assert.True(t, json.Valid(res.Raw))
	})

	t.Run("maps 429 to rate limit", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
		_, err := c.Complete(t.Context(), "prompt", capabilities.RecommendationSchema("recs"))
		assert.True(t, capabilities.IsKind(err, capabilities.KindRateLimit))
	})

	t.Run("no api key is unavailable", func(t *testing.T) {
		_, err := New(Config{}).Complete(t.Context(), "prompt", capabilities.RecommendationSchema("recs"))
		assert.True(t, capabilities.IsKind(err, capabilities.KindUnavailable))
	})
}

func TestAnalyze_SendsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, 2, strings.Count(string(body), `"input_image"`))
		_ = json.NewEncoder(w).Encode(outputTextResponse(`{"is_empty":true,"confidence":0.9,"reasoning":"bare"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-test", TextModel: "gpt-test"})
	res, err := c.Analyze(t.Context(), []byte("img-a"), "is it empty?", capabilities.RoomEmptinessSchema, []byte("img-b"))
	require.NoError(t, err)
	assert.Contains(t, string(res.Raw), `"is_empty":true`)
}

func TestGenerate(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	encoded := base64.StdEncoding.EncodeToString(png)

	t.Run("uses edits with references", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/images/edits", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Len(t, r.MultipartForm.File["image[]"], 2)
			assert.Equal(t, "redesign", r.FormValue("prompt"))
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{map[string]any{"b64_json": encoded}}})
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL, APIKey: "sk-test", ImageModel: "gpt-image-1"})
		out, err := c.Generate(t.Context(), "redesign", [][]byte{png, png})
		require.NoError(t, err)
		assert.Equal(t, png, out)
	})

	t.Run("empty data is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/images/generations", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
		_, err := c.Generate(t.Context(), "redesign", nil)
		assert.True(t, capabilities.IsKind(err, capabilities.KindMalformedResponse))
	})
}
