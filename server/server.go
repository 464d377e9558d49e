// Package server assembles the gateway and its HTTP surface from
// configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/zjx20/gemini-gateway/config"
	"github.com/zjx20/gemini-gateway/extract"
	"github.com/zjx20/gemini-gateway/gateway"
	"github.com/zjx20/gemini-gateway/gemini"
	"github.com/zjx20/gemini-gateway/handler"
	"github.com/zjx20/gemini-gateway/safety"
	"github.com/zjx20/gemini-gateway/util/httpclient"
	"github.com/zjx20/gemini-gateway/util/tokenbucket"
)

var ErrNoAPIKey = errors.New("no Gemini API key configured, set GEMINI_API_KEY or gemini.api_key")

// Build wires the collaborators for cfg and returns the router. cleanup
// releases the provider client and the throttle.
func Build(ctx context.Context, cfg *config.Config) (router http.Handler, cleanup func(), err error) {
	if cfg.Gemini.APIKey == "" {
		return nil, nil, ErrNoAPIKey
	}
	httpClient, err := httpclient.CustomPingInterval(cfg.PingInterval())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build http client: %w", err)
	}
	backend, closeBackend, err := gemini.NewBackend(ctx, cfg.Gemini.APIKey,
		httpclient.WithAPIKey(httpClient, cfg.Gemini.APIKey))
	if err != nil {
		return nil, nil, err
	}

	clientCfg := gemini.ClientConfig{Timeout: cfg.Timeout()}
	if cfg.RateLimit.Enabled {
		bucket, err := tokenbucket.NewPerMinute(cfg.RateLimit.MaxTokens, cfg.RateLimit.PerMinute)
		if err != nil {
			closeBackend()
			return nil, nil, fmt.Errorf("invalid rate_limit: %w", err)
		}
		clientCfg.Throttle = bucket
		log.Infof("upstream throttle enabled, %d calls per minute", cfg.RateLimit.PerMinute)
	}

	gw := gateway.New(
		gemini.NewClient(backend, clientCfg),
		extract.New(cfg.Extract.TempDir),
		safety.NewEngine(cfg.Safety.DefaultLocale),
		gateway.Config{
			Models:          cfg.Models,
			MaxHistoryTurns: cfg.Limits.MaxHistoryTurns,
		},
	)
	router = handler.NewRouter(handler.New(gw), cfg.Limits.MaxUploadBytes)

	cleanup = func() {
		if clientCfg.Throttle != nil {
			clientCfg.Throttle.Stop()
		}
		if err := closeBackend(); err != nil {
			log.Warnf("close gemini client: %s", err)
		}
	}
	return router, cleanup, nil
}
