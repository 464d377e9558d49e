// Package gateway turns one inbound request into at most one model call and
// shapes the reply for the caller.
//
// Each request runs extraction, safety screening, composition and
// invocation in sequence. Nothing is shared between requests except the
// read-only collaborators held by Gateway.
package gateway

import (
	"context"
	"errors"
	"strings"

	m "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/zjx20/gemini-gateway/config"
	"github.com/zjx20/gemini-gateway/extract"
	"github.com/zjx20/gemini-gateway/gemini"
	"github.com/zjx20/gemini-gateway/prompt"
	"github.com/zjx20/gemini-gateway/safety"
)

// Upload is a document as received. Name is a file name or a MIME type.
type Upload struct {
	Name string
	Data []byte
}

// ChatMessage is a conversation entry in the caller's role vocabulary.
type ChatMessage struct {
	Role    string
	Content string
}

type Request struct {
	Kind     Kind
	Prompt   string
	Image    *prompt.Image
	Document *Upload
	// Messages is the conversation for KindWellnessChat. When Prompt is
	// also set, Messages is the history and Prompt the latest message.
	Messages []ChatMessage
	// Contents is the same conversation in the Gemini-native shape. A
	// request carrying both is rejected once screening has passed.
	Contents []ChatMessage
	Locale   string
	// Rejection is set when the transport layer could not accept the
	// input. A wellness request is still screened before it is applied.
	Rejection *Rejection
}

type Rejection struct {
	Outcome Outcome
	Text    string
}

func (r *Rejection) Reply(kind Kind) *Reply {
	return &Reply{Kind: kind, Outcome: r.Outcome, Text: r.Text}
}

type Config struct {
	Models config.Models
	// MaxHistoryTurns keeps only the most recent prior turns; <= 0 keeps all.
	// The config layer maps an unset value to its default and passes
	// negative values through.
	MaxHistoryTurns int
}

type Gateway struct {
	generator gemini.Generator
	extractor *extract.Extractor
	safety    *safety.Engine
	cfg       Config
}

func New(generator gemini.Generator, extractor *extract.Extractor, engine *safety.Engine, cfg Config) *Gateway {
	return &Gateway{
		generator: generator,
		extractor: extractor,
		safety:    engine,
		cfg:       cfg,
	}
}

// Handle never fails: every error is mapped to a Reply for req.Kind.
func (g *Gateway) Handle(ctx context.Context, req *Request) *Reply {
	logger := log.WithFields(log.Fields{
		"request_id": m.GetReqID(ctx),
		"kind":       req.Kind.String(),
	})
	var reply *Reply
	switch req.Kind {
	case KindWellnessChat:
		reply = g.wellnessChat(ctx, logger, req)
	case KindTextOnly, KindImageOnly, KindImageWithQuestion, KindDocumentWithQuestion, KindHealthChat:
		if req.Rejection != nil {
			reply = req.Rejection.Reply(req.Kind)
			break
		}
		reply = g.dispatch(ctx, logger, req)
	default:
		logger.Errorf("unknown request kind")
		reply = &Reply{Kind: KindTextOnly, Outcome: OutcomeInvalidInput, Text: "Unknown request kind."}
	}
	logger.WithField("outcome", reply.Outcome.String()).Debugf("request handled")
	return reply
}

func (g *Gateway) dispatch(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	switch req.Kind {
	case KindTextOnly:
		return g.textOnly(ctx, logger, req)
	case KindImageOnly:
		return g.imageOnly(ctx, logger, req)
	case KindImageWithQuestion:
		return g.imageWithQuestion(ctx, logger, req)
	case KindDocumentWithQuestion:
		return g.documentWithQuestion(ctx, logger, req)
	default:
		return g.healthChat(ctx, logger, req)
	}
}

func (g *Gateway) textOnly(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	question := strings.TrimSpace(req.Prompt)
	if question == "" {
		return missing(req.Kind, MsgPromptMissing)
	}
	return g.composeAndGenerate(ctx, logger, req.Kind, prompt.Input{Question: question}, g.cfg.Models.Text)
}

func (g *Gateway) imageOnly(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	if reply := checkImage(req); reply != nil {
		return reply
	}
	in := prompt.Input{Image: req.Image, Question: CategorizePrompt}
	return g.composeAndGenerate(ctx, logger, req.Kind, in, g.cfg.Models.Image, gemini.WithTemperature(0))
}

func (g *Gateway) imageWithQuestion(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	if reply := checkImage(req); reply != nil {
		return reply
	}
	question := strings.TrimSpace(req.Prompt)
	if question == "" {
		return missing(req.Kind, MsgPromptMissing)
	}
	in := prompt.Input{Image: req.Image, Question: question}
	return g.composeAndGenerate(ctx, logger, req.Kind, in, g.cfg.Models.Image)
}

func (g *Gateway) documentWithQuestion(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	if req.Document == nil {
		return missing(req.Kind, MsgDocumentMissing)
	}
	var unsupported *extract.UnsupportedFormatError
	if _, err := extract.FormatOf(req.Document.Name); errors.As(err, &unsupported) {
		return &Reply{Kind: req.Kind, Outcome: OutcomeUnsupportedFormat, Text: unsupportedFileType(unsupported.Extension)}
	}
	question := strings.TrimSpace(req.Prompt)
	if question == "" {
		return missing(req.Kind, MsgPromptMissing)
	}

	doc, err := g.extractor.Extract(ctx, req.Document.Data, req.Document.Name)
	if err != nil {
		if errors.As(err, &unsupported) {
			return &Reply{Kind: req.Kind, Outcome: OutcomeUnsupportedFormat, Text: unsupportedFileType(unsupported.Extension)}
		}
		logger.Warnf("extraction aborted: %s", err)
		return &Reply{Kind: req.Kind, Outcome: OutcomeUnavailable, Text: MsgUnavailable}
	}
	logger = logger.WithField("format", doc.Format.String())
	if doc.Degraded {
		logger.Warnf("document %q produced no text, answering without it", req.Document.Name)
	}

	in := prompt.Input{
		System:      DocumentInstruction,
		Document:    doc.Text,
		HasDocument: true,
		Question:    question,
	}
	return g.composeAndGenerate(ctx, logger, req.Kind, in, g.cfg.Models.Document)
}

func (g *Gateway) wellnessChat(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	// Screening comes first so nothing later in the pipeline, including a
	// body the transport layer rejected, can keep the override from being
	// returned.
	for _, text := range screenedTexts(req) {
		verdict := g.safety.Screen(text, req.Locale)
		if verdict.Triggered {
			logger.WithField("category", verdict.Category.String()).Warnf("crisis indicator matched, returning override response")
			return &Reply{Kind: req.Kind, Outcome: OutcomeOverride, Text: verdict.Response}
		}
	}
	if req.Rejection != nil {
		return req.Rejection.Reply(req.Kind)
	}
	if len(req.Messages) > 0 && len(req.Contents) > 0 {
		return &Reply{Kind: req.Kind, Outcome: OutcomeInvalidInput, Text: MsgMixedHistory}
	}

	conversation := req.Messages
	if len(conversation) == 0 {
		conversation = req.Contents
	}
	latest, history, last := splitConversation(req.Prompt, conversation)
	if latest == "" || !last {
		return missing(req.Kind, MsgMessageMissing)
	}

	messages, err := canonicalHistory(history)
	if err != nil {
		var roleErr *prompt.UnknownRoleError
		if errors.As(err, &roleErr) {
			return &Reply{Kind: req.Kind, Outcome: OutcomeInvalidInput, Text: unsupportedRole(roleErr.Role)}
		}
		return &Reply{Kind: req.Kind, Outcome: OutcomeInvalidInput, Text: err.Error()}
	}
	if limit := g.cfg.MaxHistoryTurns; limit > 0 && len(messages) > limit {
		logger.Infof("history has %d turns, keeping the last %d", len(messages), limit)
		messages = messages[len(messages)-limit:]
	}

	in := prompt.Input{
		System:   safety.WellnessInstruction,
		History:  messages,
		Question: latest,
	}
	return g.composeAndGenerate(ctx, logger, req.Kind, in, g.cfg.Models.Wellness)
}

func (g *Gateway) healthChat(ctx context.Context, logger *log.Entry, req *Request) *Reply {
	question := strings.TrimSpace(req.Prompt)
	if question == "" {
		return missing(req.Kind, MsgPromptMissing)
	}
	lower := strings.ToLower(question)
	if !strings.Contains(lower, "health") && !strings.Contains(lower, "doctor") {
		return &Reply{Kind: req.Kind, Outcome: OutcomeOffTopic, Text: MsgHealthOffTopic}
	}
	in := prompt.Input{System: HealthInstruction, Question: question}
	return g.composeAndGenerate(ctx, logger, req.Kind, in, g.cfg.Models.Health)
}

func (g *Gateway) composeAndGenerate(ctx context.Context, logger *log.Entry, kind Kind, in prompt.Input, model string, opts ...gemini.Option) *Reply {
	p, err := prompt.Compose(in)
	if err != nil {
		logger.Errorf("compose prompt: %s", err)
		return &Reply{Kind: kind, Outcome: OutcomeInvalidInput, Text: err.Error()}
	}
	res, err := g.generator.Generate(ctx, p, model, opts...)
	if err != nil {
		logger.WithField("model", model).Warnf("generation failed: %s", err)
		return failure(kind, err)
	}
	if res.Empty {
		return &Reply{Kind: kind, Outcome: OutcomeEmpty, Text: gemini.NoResponse}
	}
	return &Reply{Kind: kind, Outcome: OutcomeAnswered, Text: res.Text}
}

func failure(kind Kind, err error) *Reply {
	outcome := OutcomeProviderFailure
	text := MsgProviderFailure
	if gemini.IsTransport(err) {
		outcome = OutcomeUnavailable
		text = MsgUnavailable
	}
	if kind == KindHealthChat {
		text = MsgHealthFailure
	}
	return &Reply{Kind: kind, Outcome: outcome, Text: text}
}

func missing(kind Kind, text string) *Reply {
	return &Reply{Kind: kind, Outcome: OutcomeMissingInput, Text: text}
}

func checkImage(req *Request) *Reply {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return missing(req.Kind, MsgImageMissing)
	}
	if !strings.HasPrefix(req.Image.MIMEType, "image/") {
		return &Reply{Kind: req.Kind, Outcome: OutcomeInvalidInput, Text: unsupportedImageType(req.Image.MIMEType)}
	}
	return nil
}

// screenedTexts lists the latest user message of every conversation shape
// the request carries. Prompt, when set, is the latest message.
func screenedTexts(req *Request) []string {
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return []string{p}
	}
	var texts []string
	for _, conv := range [][]ChatMessage{req.Messages, req.Contents} {
		if i := lastUser(conv); i >= 0 {
			texts = append(texts, conv[i].Content)
		}
	}
	return texts
}

// splitConversation finds the latest user message and the history before
// it. last reports whether that message ends the conversation, i.e.
// whether there is something for the model to answer.
func splitConversation(latest string, conv []ChatMessage) (string, []ChatMessage, bool) {
	if latest = strings.TrimSpace(latest); latest != "" {
		return latest, conv, true
	}
	i := lastUser(conv)
	if i < 0 {
		return "", nil, false
	}
	return strings.TrimSpace(conv[i].Content), conv[:i], i == len(conv)-1
}

func lastUser(conv []ChatMessage) int {
	for i := len(conv) - 1; i >= 0; i-- {
		if role, err := prompt.ParseRole(conv[i].Role); err == nil && role == prompt.RoleUser {
			return i
		}
	}
	return -1
}

// canonicalHistory maps caller roles onto prompt roles. Blank entries are
// dropped since the model rejects empty turns.
func canonicalHistory(history []ChatMessage) ([]prompt.Message, error) {
	out := make([]prompt.Message, 0, len(history))
	for _, msg := range history {
		role, err := prompt.ParseRole(msg.Role)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, prompt.Message{Role: role, Text: msg.Content})
	}
	return out, nil
}
