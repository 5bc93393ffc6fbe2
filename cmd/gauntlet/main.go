package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/namsral/flag"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/luzhin-io/luzhin/automatic"
	"github.com/luzhin-io/luzhin/gamestore"
)

var (
	GitVersion string
)

func engineName(evaluator string, depth int, moveTimeMs int64) string {
	if depth > 0 {
		return fmt.Sprintf("%v-d%v", evaluator, depth)
	}
	return fmt.Sprintf("%v-%vms", evaluator, moveTimeMs)
}

func main() {
	fs := flag.NewFlagSet("gauntlet", flag.ExitOnError)
	var (
		event    = fs.String("event", "gauntlet", "label for the report and game records")
		eval1    = fs.String("eval1", "psqt", "first engine's evaluator. psqt or material")
		eval2    = fs.String("eval2", "material", "second engine's evaluator. psqt or material")
		depth1   = fs.Int("depth1", 4, "first engine's fixed search depth")
		depth2   = fs.Int("depth2", 4, "second engine's fixed search depth")
		time1    = fs.Int64("time1", 0, "first engine's per-move milliseconds; overrides its depth")
		time2    = fs.Int64("time2", 0, "second engine's per-move milliseconds; overrides its depth")
		pairs    = fs.Int("pairs", 20, "number of opening pairs; each plays two games")
		threads  = fs.Int("threads", 1, "games played concurrently")
		plies    = fs.Int("plies", 0, "adjudicate longer games as drawn; 0 for the default cap")
		hash     = fs.Int("hash", 0, "transposition table megabytes per engine; 0 for the default")
		seed     = fs.Uint64("seed", 1, "opening shuffle seed; same seed, same schedule")
		openings = fs.String("openings", "", "opening suite file; empty for the built-in suite")
		logPath  = fs.String("log", "", "write per-game YAML records to this file")
		pgnDir   = fs.String("pgn", "", "write each game's PGN into this directory")
		dbPath   = fs.String("db", "", "archive games into this SQLite database")
		logLevel = fs.String("log-level", "info", "log level. debug, info, or disabled")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		panic(err)
	}

	level := zerolog.InfoLevel
	switch *logLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "disabled":
		level = zerolog.Disabled
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	if GitVersion != "" {
		log.Info().Str("version", GitVersion).Msg("gauntlet")
	}

	d1, d2 := *depth1, *depth2
	if *time1 > 0 {
		d1 = 0
	}
	if *time2 > 0 {
		d2 = 0
	}
	name1 := engineName(*eval1, d1, *time1)
	name2 := engineName(*eval2, d2, *time2)
	if name1 == name2 {
		name1 += "-a"
		name2 += "-b"
	}

	match := &automatic.Match{
		Event: *event,
		EngineA: automatic.EngineSpec{
			Name: name1, Evaluator: *eval1, Depth: d1, MoveTimeMs: *time1, TTMegabytes: *hash,
		},
		EngineB: automatic.EngineSpec{
			Name: name2, Evaluator: *eval2, Depth: d2, MoveTimeMs: *time2, TTMegabytes: *hash,
		},
		Pairs:    *pairs,
		MaxPlies: *plies,
		Threads:  *threads,
		Seed:     *seed,
		PGNDir:   *pgnDir,
	}
	if *openings != "" {
		suite, err := automatic.LoadOpenings(*openings)
		if err != nil {
			log.Fatal().Err(err).Msg("loading-openings")
		}
		match.Openings = suite
	}
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			log.Fatal().Err(err).Msg("creating-game-log")
		}
		defer f.Close()
		match.LogStream = f
	}
	if *dbPath != "" {
		store, err := gamestore.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("opening-game-archive")
		}
		defer store.Close()
		match.Archive = store
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		// Finished games still count; the report covers what completed.
		log.Info().Msg("got quit signal...")
		cancel()
	}()

	report, err := match.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("match-failed")
	}
	fmt.Println(report.String())
}
