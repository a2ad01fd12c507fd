package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"pintatina/internal/domain"
	"pintatina/internal/prompt"
)

// contentGenerator is the part of genai.Models the provider needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// SDKProvider generates pages through the official genai client.
type SDKProvider struct {
	models contentGenerator
	model  string
}

func NewSDK(ctx context.Context, opts Options) (*SDKProvider, error) {
	o := withDefaults(opts)
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     o.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    o.BaseURL + "/",
			APIVersion: o.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &SDKProvider{models: cli.Models, model: o.Model}, nil
}

func (p *SDKProvider) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Image, error) {
	parts := []*genai.Part{{Text: req.Text}}
	for _, ref := range req.Images {
		parts = append(parts,
			&genai.Part{Text: prompt.ReferenceLabel(ref.Ordinal)},
			&genai.Part{InlineData: &genai.Blob{MIMEType: ref.MimeType, Data: ref.Data}},
		)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := p.models.GenerateContent(ctx, p.model, []*genai.Content{{Role: "user", Parts: parts}}, config)
	if err != nil {
		return domain.Image{}, fmt.Errorf("generate content: %w", err)
	}
	return parseSDKResponse(resp)
}

func parseSDKResponse(resp *genai.GenerateContentResponse) (domain.Image, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return domain.Image{}, fmt.Errorf("%w: no candidates", ErrNoImage)
	}

	first := resp.Candidates[0]
	if first.FinishReason != "" && first.FinishReason != genai.FinishReasonUnspecified && first.FinishReason != genai.FinishReasonStop {
		return domain.Image{}, fmt.Errorf("%w: finish reason %s", ErrNoImage, first.FinishReason)
	}
	if first.Content == nil {
		return domain.Image{}, fmt.Errorf("%w: empty content", ErrNoImage)
	}

	var text strings.Builder
	for _, part := range first.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return domain.Image{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
		}
		text.WriteString(part.Text)
	}
	return domain.Image{}, fmt.Errorf("%w: text %q", ErrNoImage, truncate(text.String(), 120))
}
