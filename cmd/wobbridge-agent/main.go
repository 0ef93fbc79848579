package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scalewob/wobbridge/internal/agent"
	"github.com/scalewob/wobbridge/internal/config"
	"github.com/scalewob/wobbridge/internal/dom/cdpdom"
	"github.com/scalewob/wobbridge/internal/logx"
)

var version = "dev"

func main() {
	var cfg config.AgentConfig
	cfg.BindFlags()
	flag.Parse()
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config file")
		}
	}
	logx.SetLevel(cfg.LogLevel)
	if cfg.LogFile != "" {
		logx.SetupFile(cfg.LogFile)
	}
	agent.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := cdpdom.Attach(ctx, cfg.DevToolsURL, cfg.TargetID)
	if err != nil {
		logx.Log.Fatal().Err(err).Str("devtools", cfg.DevToolsURL).Msg("attach to guest document")
	}
	defer doc.Close()
	doc.WaitReady(ctx, 5*time.Second)

	log := logx.Log.Info().Str("agent_name", cfg.AgentName).Str("environment", cfg.Environment)
	if cfg.AgentKey != "" {
		log = log.Bool("auth", true)
	}
	log.Msg("agent starting")

	if err := agent.Run(ctx, cfg, doc); err != nil && ctx.Err() == nil {
		logx.Log.Fatal().Err(err).Msg("agent exited")
	}
}
