package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/luzhin-io/luzhin/config"
	"github.com/luzhin-io/luzhin/uci"
)

var (
	GitVersion string
)

func main() {
	cfg := &config.Config{}
	args := os.Args[1:]
	if err := cfg.Load(args); err != nil {
		panic(err)
	}

	// Protocol output owns stdout; logs stay on stderr.
	var logger zerolog.Logger
	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger = zerolog.New(os.Stderr).Level(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
		logger = zerolog.New(os.Stderr).Level(zerolog.Disabled)
	}
	logger.Debug().Msg("debug logging is on")
	zerolog.DefaultContextLogger = &logger

	engine, err := uci.NewEngine(cfg, GitVersion, os.Stdin, os.Stdout)
	if err != nil {
		panic(err)
	}
	engine.Loop()
	logger.Info().Msg("bye")
}
