package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zjx20/gemini-gateway/config"
	"github.com/zjx20/gemini-gateway/server"
	"github.com/zjx20/gemini-gateway/util"
)

func init() {
	log.SetLevel(config.GetLogLevel())
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:   !util.LogColor(),
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	config.AddConfigChangeCallback(func() {
		log.SetLevel(config.GetLogLevel())
	})
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalln(err)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "gemini-gateway",
		Short:         "Request gateway in front of the Gemini API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config yaml path")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), cfgPath)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load the config and report problems",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				if cfg.Gemini.APIKey == "" {
					return server.ErrNoAPIKey
				}
				fmt.Fprintln(cmd.OutOrStdout(), "config ok")
				return nil
			},
		},
	)
	return cmd
}

func serve(ctx context.Context, cfgPath string) error {
	if err := config.Init(cfgPath); err != nil {
		return err
	}
	cfg := config.ReadConfig()
	log.SetLevel(config.GetLogLevel())

	router, cleanup, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.Infof("Server listening at %s", l.Addr())
	return http.Serve(l, router)
}
