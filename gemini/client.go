// Package gemini invokes the generative model for a composed prompt.
//
// Every call is bounded by a timeout and classified into the failure kinds
// in errors.go. A response without usable text is not an error: it comes
// back as a Result with Empty set and the NoResponse placeholder as text.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"

	"github.com/zjx20/gemini-gateway/prompt"
	"github.com/zjx20/gemini-gateway/util/tokenbucket"
)

// NoResponse is the placeholder text of an empty result.
const NoResponse = "No response available."

const defaultTimeout = 60 * time.Second

type Result struct {
	Text  string
	Empty bool
}

type Generator interface {
	Generate(ctx context.Context, p *prompt.Prompt, model string, opts ...Option) (*Result, error)
}

type Option func(*CallConfig)

func WithTemperature(t float32) Option {
	return func(c *CallConfig) { c.Temperature = &t }
}

func WithMaxOutputTokens(n int32) Option {
	return func(c *CallConfig) { c.MaxOutputTokens = &n }
}

type ClientConfig struct {
	Timeout time.Duration
	// Throttle, when set, is consumed once per call before reaching the
	// provider.
	Throttle *tokenbucket.AdaptiveTokenBucket
}

type Client struct {
	backend  Backend
	timeout  time.Duration
	throttle *tokenbucket.AdaptiveTokenBucket
}

var _ Generator = (*Client)(nil)

func NewClient(backend Backend, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		backend:  backend,
		timeout:  cfg.Timeout,
		throttle: cfg.Throttle,
	}
}

type sendResult struct {
	resp *genai.GenerateContentResponse
	err  error
}

// Generate makes a single attempt. It returns within the configured timeout
// even if the backend ignores its context.
func (c *Client) Generate(ctx context.Context, p *prompt.Prompt, model string, opts ...Option) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prompt: %w", err)
	}
	var cfg CallConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	logger := log.WithField("model", model)

	if c.throttle != nil {
		ruleID, err := c.throttle.Consume(ctx)
		if err != nil {
			perr := &ProviderError{Kind: FailureTransport, Model: model, Err: fmt.Errorf("waiting for rate limit: %w", err)}
			logger.Errorf("%s", perr)
			return nil, perr
		}
		logger.Debugf("throttle rule %d", ruleID)
	}

	ch := make(chan sendResult, 1)
	go func() {
		defer func() {
			if obj := recover(); obj != nil {
				ch <- sendResult{err: fmt.Errorf("recovered from panic, err: %+v", obj)}
			}
		}()
		resp, err := c.backend.Send(ctx, model, p, cfg)
		ch <- sendResult{resp: resp, err: err}
	}()

	var res sendResult
	select {
	case <-ctx.Done():
		res.err = fmt.Errorf("gemini call did not finish within %s: %w", c.timeout, ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		perr := classify(res.err, model)
		logger.Errorf("gemini err: %T %q, kind: %s", res.err, res.err.Error(), perr.Kind)
		return nil, perr
	}

	text := responseText(res.resp)
	if strings.TrimSpace(text) == "" {
		logger.Warnf("gemini returned no usable text")
		return &Result{Text: NoResponse, Empty: true}, nil
	}
	logger.Debugf("answer: %s", text)
	return &Result{Text: text}, nil
}
