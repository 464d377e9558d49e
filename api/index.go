// Package api is the serverless entry point. The router is built on the
// first request from the environment and an optional GATEWAY_CONFIG file.
package api

import (
	"context"
	"net/http"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zjx20/gemini-gateway/config"
	"github.com/zjx20/gemini-gateway/server"
	"github.com/zjx20/gemini-gateway/util"
)

var (
	once    sync.Once
	router  http.Handler
	initErr error
)

func setup() {
	if initErr = config.Init(os.Getenv("GATEWAY_CONFIG")); initErr != nil {
		return
	}
	log.SetLevel(config.GetLogLevel())
	// lives as long as the function instance
	router, _, initErr = server.Build(context.Background(), config.ReadConfig())
}

func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		log.Errorf("gateway init failed: %s", initErr)
		util.FallbackEvent(w, r)
		return
	}
	router.ServeHTTP(w, r)
}
