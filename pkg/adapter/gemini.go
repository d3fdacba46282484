package adapter

import (
	"context"
	_ "embed"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/system.md
var defaultSystemInstruction string

// DefaultSystemInstruction returns the embedded persona used when none is configured
func DefaultSystemInstruction() string {
	return defaultSystemInstruction
}

// Gemini is the generation and embedding service backed by the genai SDK
type Gemini struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimension       int32
	generation      GenerationConfig
}

type GeminiOption func(*Gemini)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension sets the output dimensionality requested from the embedding model
func WithEmbeddingDimension(dim int) GeminiOption {
	return func(g *Gemini) {
		g.dimension = int32(dim)
	}
}

// WithGenerationConfig sets temperature, token limit and system instruction.
// A model named in cfg replaces the default generative model.
func WithGenerationConfig(cfg GenerationConfig) GeminiOption {
	return func(g *Gemini) {
		g.generation = cfg
		if cfg.Model != "" {
			g.generativeModel = cfg.Model
		}
	}
}

// NewGemini creates a client. With a non-empty apiKey the Gemini API backend
// is used, otherwise Vertex AI with projectID and location.
func NewGemini(ctx context.Context, projectID, location, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	cc := &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if apiKey != "" {
		cc = &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &Gemini{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
		dimension:       model.EmbeddingDimension,
		generation:      DefaultGenerationConfig(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Generate sends the turns to Gemini and returns the reply text
func (g *Gemini) Generate(ctx context.Context, turns []model.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Text, geminiRole(turn.Role)))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.generation.Temperature),
	}
	if g.generation.MaxOutputTokens > 0 {
		config.MaxOutputTokens = g.generation.MaxOutputTokens
	}
	if g.generation.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(g.generation.SystemInstruction, "")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content",
			goerr.V("model", g.generativeModel),
			goerr.T(model.ErrTagGenerationUnavailable),
		)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", goerr.New("prompt blocked by generation service",
			goerr.V("reason", resp.PromptFeedback.BlockReason),
			goerr.T(model.ErrTagGenerationRejected),
		)
	}
	if len(resp.Candidates) > 0 && isRejectedFinish(resp.Candidates[0].FinishReason) {
		return "", goerr.New("response rejected by generation service",
			goerr.V("finish_reason", resp.Candidates[0].FinishReason),
			goerr.T(model.ErrTagGenerationRejected),
		)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", goerr.New("empty response from generation service",
			goerr.V("model", g.generativeModel),
			goerr.T(model.ErrTagGenerationUnavailable),
		)
	}

	return text, nil
}

// Embed returns the embedding vector of text
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{}
	if g.dimension > 0 {
		config.OutputDimensionality = genai.Ptr(g.dimension)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content",
			goerr.V("model", g.embeddingModel),
			goerr.T(model.ErrTagEmbeddingUnavailable),
		)
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("no embedding in response", goerr.T(model.ErrTagEmbeddingUnavailable))
	}

	values := resp.Embeddings[0].Values
	if g.dimension > 0 && len(values) != int(g.dimension) {
		return nil, goerr.New("unexpected embedding dimension",
			goerr.V("expected", g.dimension),
			goerr.V("actual", len(values)),
			goerr.T(model.ErrTagEmbeddingUnavailable),
		)
	}

	return values, nil
}

func geminiRole(role model.Role) genai.Role {
	if role == model.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func isRejectedFinish(reason genai.FinishReason) bool {
	switch reason {
	case genai.FinishReasonSafety,
		genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII:
		return true
	default:
		return false
	}
}

// extractText joins the text parts of the first candidate
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "")
}
