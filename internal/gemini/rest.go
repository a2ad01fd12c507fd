package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"pintatina/internal/domain"
	"pintatina/internal/prompt"
)

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RESTProvider calls the generateContent endpoint directly.
type RESTProvider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewREST(opts Options) (*RESTProvider, error) {
	if opts.HTTPClient == nil {
		return nil, errors.New("gemini: http client is required")
	}
	o := withDefaults(opts)
	return &RESTProvider{
		apiKey:     o.APIKey,
		baseURL:    o.BaseURL,
		apiVersion: o.APIVersion,
		model:      o.Model,
		httpClient: o.HTTPClient,
		logger:     o.Logger,
	}, nil
}

func withDefaults(opts Options) Options {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com"
	}
	opts.APIVersion = strings.TrimSpace(opts.APIVersion)
	if opts.APIVersion == "" {
		opts.APIVersion = "v1beta"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts
}

// Generate sends the request text followed by every reference photo, each
// photo preceded by its @imgK label, and returns the first inline image.
func (p *RESTProvider) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Image, error) {
	parts := []part{{Text: req.Text}}
	for _, ref := range req.Images {
		parts = append(parts,
			part{Text: prompt.ReferenceLabel(ref.Ordinal)},
			part{InlineData: &blob{
				Data:     base64.StdEncoding.EncodeToString(ref.Data),
				MimeType: ref.MimeType,
			}},
		)
	}

	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if req.AspectRatio != "" {
		payload.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := p.generateContent(ctx, payload)
	if err != nil && payload.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		p.logger.Warn("imageConfig rejected, retrying without aspect ratio", "model", p.model)
		payload.GenerationConfig.ImageConfig = nil
		resp, err = p.generateContent(ctx, payload)
	}
	if err != nil {
		return domain.Image{}, err
	}
	return extractImage(resp)
}

func (p *RESTProvider) generateContent(ctx context.Context, payload generateContentRequest) (generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", p.baseURL, p.apiVersion, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return generateContentResponse{}, fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

func extractImage(resp generateContentResponse) (domain.Image, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return domain.Image{}, fmt.Errorf("%w: prompt blocked (%s)", ErrNoImage, resp.PromptFeedback.BlockReason)
		}
		return domain.Image{}, fmt.Errorf("%w: no candidates", ErrNoImage)
	}

	first := resp.Candidates[0]
	var text strings.Builder
	for _, p := range first.Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return domain.Image{}, fmt.Errorf("decode inline image: %w", err)
			}
			mimeType := p.InlineData.MimeType
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			return domain.Image{Data: data, MimeType: mimeType}, nil
		}
		text.WriteString(p.Text)
	}

	return domain.Image{}, fmt.Errorf("%w: finish reason %q, text %q", ErrNoImage, first.FinishReason, truncate(text.String(), 120))
}
