package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/fpang/litter-report/internal/assets"
	"github.com/fpang/litter-report/internal/jsonutil"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is fast and cheap enough for one call per report.
const DefaultGeminiModel = "gemini-2.5-flash"

// ContentGenerator is implemented by (*genai.Client).Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Gemini classifies photos with a multimodal Gemini model.
type Gemini struct {
	models     ContentGenerator
	model      string
	categories []string
	system     string
}

var _ Service = (*Gemini)(nil)

// NewGemini builds a classifier restricted to categories.
func NewGemini(models ContentGenerator, model string, categories []string) (*Gemini, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	system, err := assets.ClassificationSystemPrompt(categories)
	if err != nil {
		return nil, fmt.Errorf("render classification prompt: %w", err)
	}
	return &Gemini{models: models, model: model, categories: categories, system: system}, nil
}

type geminiResponse struct {
	Labels []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
}

func (g *Gemini) Classify(ctx context.Context, image []byte, mimeType string) ([]report.Label, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: g.system}},
		},
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			{Text: assets.ClassificationUserPrompt},
		},
	}}

	log.Debug().Str("model", g.model).Int("image_bytes", len(image)).Msg("Starting Gemini classification call")
	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	elapsed := time.Since(start)

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "classify").
		Dimension("Provider", "gemini").
		Metric("ClassifyLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ClassifyCalls")
	if err != nil {
		m.Count("ClassifyErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || resp.Text() == "" {
		return nil, fmt.Errorf("received empty response from Gemini API")
	}

	parsed, err := jsonutil.ParseJSON[geminiResponse](resp.Text())
	if err != nil {
		return nil, fmt.Errorf("parse classification response: %w", err)
	}

	labels := make([]report.Label, 0, len(parsed.Labels))
	for _, l := range parsed.Labels {
		labels = append(labels, report.Label{Name: l.Label, Confidence: l.Confidence})
	}
	out := Normalize(labels, g.categories)
	log.Debug().Dur("duration", elapsed).Int("labels", len(out)).Msg("Gemini classification complete")
	return out, nil
}
