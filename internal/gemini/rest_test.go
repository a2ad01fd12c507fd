package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pintatina/internal/domain"
)

var pageRequest = domain.GenerationRequest{
	Text:        "draw @img1",
	AspectRatio: "3:4",
	Images: []domain.ReferenceImage{
		{Ordinal: 1, Image: domain.Image{Data: []byte("face"), MimeType: "image/jpeg"}},
	},
}

func newTestREST(t *testing.T, handler http.HandlerFunc) *RESTProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewREST(Options{APIKey: "test-key", BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return p
}

func writeImage(w http.ResponseWriter, data []byte) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{
				map[string]any{"text": "here you go"},
				map[string]any{"inlineData": map[string]any{
					"mimeType": "image/png",
					"data":     base64.StdEncoding.EncodeToString(data),
				}},
			}},
			"finishReason": "STOP",
		}},
	})
}

func TestNewREST_RequiresHTTPClient(t *testing.T) {
	_, err := NewREST(Options{})
	assert.Error(t, err)
}

func TestRESTProvider_Generate(t *testing.T) {
	t.Run("sends labelled photos and returns the image", func(t *testing.T) {
		p := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

			var got generateContentRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			require.Len(t, got.Contents, 1)
			parts := got.Contents[0].Parts
			require.Len(t, parts, 3)
			assert.Equal(t, "draw @img1", parts[0].Text)
			assert.Equal(t, "Reference image for subject @img1:", parts[1].Text)
			require.NotNil(t, parts[2].InlineData)
			assert.Equal(t, "image/jpeg", parts[2].InlineData.MimeType)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("face")), parts[2].InlineData.Data)
			require.NotNil(t, got.GenerationConfig.ImageConfig)
			assert.Equal(t, "3:4", got.GenerationConfig.ImageConfig.AspectRatio)

			writeImage(w, []byte("png-bytes"))
		})

		img, err := p.Generate(context.Background(), pageRequest)
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), img.Data)
		assert.Equal(t, "image/png", img.MimeType)
	})

	t.Run("text only response is an error", func(t *testing.T) {
		p := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"I can't draw that"}]},"finishReason":"STOP"}]}`)
		})
		_, err := p.Generate(context.Background(), pageRequest)
		assert.ErrorIs(t, err, ErrNoImage)
	})

	t.Run("blocked prompt", func(t *testing.T) {
		p := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
		})
		_, err := p.Generate(context.Background(), pageRequest)
		assert.ErrorIs(t, err, ErrNoImage)
		assert.Contains(t, err.Error(), "SAFETY")
	})

	t.Run("http error", func(t *testing.T) {
		p := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
		})
		_, err := p.Generate(context.Background(), pageRequest)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNoImage))
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("retries without imageConfig when the API does not know it", func(t *testing.T) {
		var calls atomic.Int32
		p := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			var got generateContentRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			if calls.Add(1) == 1 {
				require.NotNil(t, got.GenerationConfig.ImageConfig)
				http.Error(w, `Invalid JSON payload received. Unknown name "imageConfig"`, http.StatusBadRequest)
				return
			}
			assert.Nil(t, got.GenerationConfig.ImageConfig)
			writeImage(w, []byte("second"))
		})

		img, err := p.Generate(context.Background(), pageRequest)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), img.Data)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Generate(ctx, pageRequest)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
