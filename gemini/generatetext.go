package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zjx20/gemini-gateway/prompt"
)

// CallConfig carries per-call generation settings; nil fields keep the
// model defaults.
type CallConfig struct {
	Temperature     *float32
	MaxOutputTokens *int32
}

// Backend performs one raw generation call.
type Backend interface {
	Send(ctx context.Context, model string, p *prompt.Prompt, cfg CallConfig) (*genai.GenerateContentResponse, error)
}

type genaiBackend struct {
	client *genai.Client
}

// NewBackend builds the Gemini API backend. A nil httpClient uses the SDK
// default transport.
func NewBackend(ctx context.Context, apiKey string, httpClient *http.Client) (Backend, func() error, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &genaiBackend{client: client}, client.Close, nil
}

func (b *genaiBackend) Send(ctx context.Context, model string, p *prompt.Prompt, cfg CallConfig) (*genai.GenerateContentResponse, error) {
	m := b.client.GenerativeModel(model)
	if cfg.Temperature != nil {
		m.SetTemperature(*cfg.Temperature)
	}
	if cfg.MaxOutputTokens != nil {
		m.SetMaxOutputTokens(*cfg.MaxOutputTokens)
	}
	if s := p.System(); s != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(s)}}
	}
	cs := m.StartChat()
	for _, t := range p.History() {
		cs.History = append(cs.History, toContent(t))
	}
	return cs.SendMessage(ctx, toParts(*p.Final())...)
}

func toContent(t prompt.Turn) *genai.Content {
	role := "user"
	if t.Role == prompt.RoleModel {
		role = "model"
	}
	return &genai.Content{Role: role, Parts: toParts(t)}
}

func toParts(t prompt.Turn) []genai.Part {
	parts := make([]genai.Part, 0, len(t.Texts)+len(t.Images))
	for _, s := range t.Texts {
		parts = append(parts, genai.Text(s))
	}
	for _, img := range t.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	return parts
}

// responseText concatenates the text parts of the first candidate. Non-text
// parts are ignored; an unusable response yields "".
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	if resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if p, ok := part.(genai.Text); ok {
			sb.WriteString(string(p))
		}
	}
	return sb.String()
}
