package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/luzhin-io/luzhin/automatic"
	"github.com/luzhin-io/luzhin/gamestore"
)

func engineName(evaluator string, depth int, moveTimeMs int64) string {
	if depth > 0 {
		return fmt.Sprintf("%v-d%v", evaluator, depth)
	}
	return fmt.Sprintf("%v-%vms", evaluator, moveTimeMs)
}

// handleAutoplay starts or stops an engine-versus-engine match. The
// match runs in the background; the report prints when it finishes.
func (sc *ShellController) handleAutoplay(args []string, options map[string]string) (*Response, error) {
	if len(args) > 0 && args[0] == "stop" {
		if !sc.autoplaying() {
			return nil, errors.New("no match is being played")
		}
		sc.stopMatch()
		return msg("stopped the match"), nil
	}
	if sc.autoplaying() {
		return nil, errors.New("a match is already being played, please wait till complete")
	}

	event := "autoplay"
	eval1, eval2 := "psqt", "material"
	depth1, depth2 := sc.curDepth, sc.curDepth
	var time1Ms, time2Ms int64
	pairs, threads, maxPlies, hashMB := 4, 1, 0, 0
	var seed uint64
	var logPath, pgnDir, dbPath, openingsPath string
	archiveAll := false

	for opt, val := range options {
		var err error
		switch opt {
		case "event":
			event = val
		case "eval1":
			eval1 = val
		case "eval2":
			eval2 = val
		case "depth1":
			depth1, err = strconv.Atoi(val)
		case "depth2":
			depth2, err = strconv.Atoi(val)
		case "time1":
			var secs float64
			if secs, err = strconv.ParseFloat(val, 64); err == nil {
				time1Ms = int64(secs * 1000)
				depth1 = 0
			}
		case "time2":
			var secs float64
			if secs, err = strconv.ParseFloat(val, 64); err == nil {
				time2Ms = int64(secs * 1000)
				depth2 = 0
			}
		case "pairs":
			pairs, err = strconv.Atoi(val)
		case "threads":
			threads, err = strconv.Atoi(val)
		case "plies":
			maxPlies, err = strconv.Atoi(val)
		case "hash":
			hashMB, err = strconv.Atoi(val)
		case "seed":
			seed, err = strconv.ParseUint(val, 10, 64)
		case "file":
			logPath = val
		case "pgn":
			pgnDir = val
		case "db":
			dbPath = val
		case "openings":
			openingsPath = val
		case "archive":
			archiveAll, err = strconv.ParseBool(val)
		default:
			return nil, errors.New("option " + opt + " not recognized; see `help autoplay`")
		}
		if err != nil {
			return nil, fmt.Errorf("autoplay -%v: %w", opt, err)
		}
	}
	if archiveAll {
		if pgnDir == "" {
			pgnDir = sc.config.PGNDirectory
		}
		if dbPath == "" {
			dbPath = sc.config.GameArchivePath
		}
	}

	name1 := engineName(eval1, depth1, time1Ms)
	name2 := engineName(eval2, depth2, time2Ms)
	if name1 == name2 {
		name1 += "-a"
		name2 += "-b"
	}
	match := &automatic.Match{
		Event: event,
		EngineA: automatic.EngineSpec{
			Name: name1, Evaluator: eval1, Depth: depth1, MoveTimeMs: time1Ms, TTMegabytes: hashMB,
		},
		EngineB: automatic.EngineSpec{
			Name: name2, Evaluator: eval2, Depth: depth2, MoveTimeMs: time2Ms, TTMegabytes: hashMB,
		},
		Pairs:    pairs,
		MaxPlies: maxPlies,
		Threads:  threads,
		Seed:     seed,
		PGNDir:   pgnDir,
	}
	if openingsPath != "" {
		openings, err := automatic.LoadOpenings(openingsPath)
		if err != nil {
			return nil, err
		}
		match.Openings = openings
	}
	var logFile *os.File
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return nil, err
		}
		logFile = f
		match.LogStream = f
	}
	var archive *gamestore.Store
	if dbPath != "" {
		store, err := gamestore.Open(dbPath)
		if err != nil {
			if logFile != nil {
				logFile.Close()
			}
			return nil, err
		}
		archive = store
		match.Archive = store
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sc.mu.Lock()
	sc.matchCancel = cancel
	sc.matchDone = done
	sc.matchLogFile = logFile
	sc.matchArchive = archive
	sc.mu.Unlock()

	go func() {
		defer close(done)
		report, err := match.Run(ctx)
		if err != nil {
			sc.showError(err)
		} else {
			sc.showMessage(report.String())
		}
		sc.mu.Lock()
		if sc.matchLogFile != nil {
			if cerr := sc.matchLogFile.Close(); cerr != nil {
				log.Err(cerr).Msg("closing-match-log")
			}
			sc.matchLogFile = nil
		}
		if sc.matchArchive != nil {
			if cerr := sc.matchArchive.Close(); cerr != nil {
				log.Err(cerr).Msg("closing-match-archive")
			}
			sc.matchArchive = nil
		}
		sc.matchCancel = nil
		sc.matchDone = nil
		sc.mu.Unlock()
	}()
	return msg(fmt.Sprintf("match started: %v vs %v, %v game pairs; `autoplay stop` interrupts",
		name1, name2, pairs)), nil
}

// stopMatch cancels a running match and blocks until its report has
// been printed. A no-op when no match is running.
func (sc *ShellController) stopMatch() {
	sc.mu.Lock()
	cancel, done := sc.matchCancel, sc.matchDone
	sc.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
