package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/zjx20/gemini-gateway/gateway"
)

// Content and Part mirror the Gemini REST request shape, which the wellness
// endpoint accepts alongside its own.
type Content struct {
	Role  string  `json:"role"`
	Parts []*Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type promptBody struct {
	Prompt string `json:"prompt"`
}

func (b *promptBody) Bind(r *http.Request) error {
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wellnessBody struct {
	Message  string        `json:"message"`
	Query    string        `json:"query"`
	Messages []chatMessage `json:"messages"`
	Contents []*Content    `json:"contents"`
	Locale   string        `json:"locale"`
}

func (b *wellnessBody) Bind(r *http.Request) error {
	return nil
}

// request maps the body onto a gateway request. message wins over query.
func (b *wellnessBody) request() *gateway.Request {
	req := &gateway.Request{
		Kind:   gateway.KindWellnessChat,
		Prompt: b.Message,
		Locale: b.Locale,
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = b.Query
	}
	for _, m := range b.Messages {
		req.Messages = append(req.Messages, gateway.ChatMessage{Role: m.Role, Content: m.Content})
	}
	for _, c := range b.Contents {
		if c == nil {
			continue
		}
		role := c.Role
		if role == "" {
			role = "user"
		}
		texts := make([]string, 0, len(c.Parts))
		for _, p := range c.Parts {
			if p != nil {
				texts = append(texts, p.Text)
			}
		}
		req.Contents = append(req.Contents, gateway.ChatMessage{Role: role, Content: strings.Join(texts, "\n")})
	}
	return req
}

// salvageWellness recovers what can be screened from a wellness body that
// did not decode: the top-level message or query, else the raw body.
func salvageWellness(data []byte) *gateway.Request {
	req := &gateway.Request{Kind: gateway.KindWellnessChat}
	fields := map[string]json.RawMessage{}
	if err := render.DecodeJSON(bytes.NewReader(data), &fields); err == nil {
		req.Prompt = stringField(fields, "message")
		if strings.TrimSpace(req.Prompt) == "" {
			req.Prompt = stringField(fields, "query")
		}
		req.Locale = stringField(fields, "locale")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = string(data)
	}
	return req
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
	}
	return s
}
