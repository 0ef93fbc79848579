package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scalewob/wobbridge/internal/config"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/internal/server"
	"github.com/scalewob/wobbridge/internal/store"
)

var version = "dev"

func main() {
	var cfg config.ServerConfig
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
	server.Version = version

	var st *store.Store
	if cfg.DBPath != "" {
		var err error
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open event store")
		}
		defer func() {
			_ = st.Close()
		}()
		logx.Log.Info().Str("path", cfg.DBPath).Msg("event persistence enabled")
	}

	handler := server.New(cfg, st)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if cfg.APIKey != "" {
		logx.Log.Info().Msg("API key auth enabled")
	}
	if cfg.AgentKey != "" {
		logx.Log.Info().Msg("Agent key required")
	}
	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
