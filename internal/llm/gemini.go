package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the default Gemini model.
const DefaultModelName = "gemini-2.5-flash"

// GeminiModel implements Model with the Google Gen AI SDK.
//
// Vertex vs Gemini Developer API is controlled via env vars:
//   - GOOGLE_GENAI_USE_VERTEXAI=True -> Vertex AI
//   - GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION
//   - GOOGLE_API_KEY for the Developer API
type GeminiModel struct {
	client *genai.Client
}

// NewGeminiModel creates the shared genai client. The pipeline owns it for
// the duration of a run.
func NewGeminiModel(ctx context.Context) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiModel: create genai client: %w", err)
	}
	return &GeminiModel{client: client}, nil
}

// Generate sends the request and returns the concatenated text of the reply.
func (m *GeminiModel) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultModelName
	}

	contents, system := toGenAIContents(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("GeminiModel.Generate: request has no user or assistant messages")
	}

	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := m.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("GeminiModel.Generate: generate content: %w", err)
	}

	return &Response{Text: resp.Text()}, nil
}

// toGenAIContents maps messages onto genai contents. System messages are
// joined into a system instruction; assistant turns use the "model" role.
func toGenAIContents(msgs []Message) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   []string
	)

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents, strings.Join(system, "\n\n")
}

var _ Model = (*GeminiModel)(nil)
