// Package uci adapts the solver to the Universal Chess Interface, the
// line-oriented text protocol chess GUIs and match runners speak.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/luzhin-io/luzhin/config"
	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/game"
	"github.com/luzhin-io/luzhin/search"
)

var errSearchInProgress = errors.New("a search is already running")

// Engine runs the UCI command loop around one Solver. Commands are
// processed on the caller's goroutine; `go` launches the search on its
// own goroutine and `stop` cancels it cooperatively, so the loop stays
// responsive while the engine is thinking.
type Engine struct {
	cfg     *config.Config
	version string
	in      io.Reader
	out     io.Writer

	pos    *game.Position
	solver *search.Solver
	ttable *search.TranspositionTable
	hashMB int
	debug  bool

	// mu guards the cancel/done pair shared with the search goroutine.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	quitting bool
}

func NewEngine(cfg *config.Config, version string, in io.Reader, out io.Writer) (*Engine, error) {
	pos := game.NewPosition()
	solver := new(search.Solver)
	if err := solver.Init(pos, eval.ForName(cfg.DefaultEvaluator)); err != nil {
		return nil, err
	}
	ttable := &search.TranspositionTable{}
	ttable.SetSingleThreadedMode()
	if cfg.TTableMegabytes > 0 {
		ttable.ResetToMegabytes(cfg.TTableMegabytes)
	} else {
		ttable.Reset(search.DefaultTTFraction)
	}
	solver.SetTranspositionTable(ttable)
	return &Engine{
		cfg:     cfg,
		version: version,
		in:      in,
		out:     out,
		pos:     pos,
		solver:  solver,
		ttable:  ttable,
		hashMB:  cfg.TTableMegabytes,
	}, nil
}

// Loop reads commands until quit or EOF. A search still running when
// the input ends is stopped before Loop returns.
func (e *Engine) Loop() {
	e.quitting = false
	scanner := bufio.NewScanner(e.in)
	for !e.quitting {
		if !scanner.Scan() {
			break
		}
		command := scanner.Text()
		err := e.processCommand(command)
		if err != nil {
			e.errout(err)
		}
	}
	e.stopSearch()
}

func (e *Engine) errout(err error) {
	fmt.Fprintln(e.out, "info string error:", err.Error())
}

func (e *Engine) processCommand(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "uci":
		e.identify()
	case "isready":
		fmt.Fprintln(e.out, "readyok")
	case "ucinewgame":
		return e.newGame()
	case "position":
		return e.handlePosition(args)
	case "go":
		return e.handleGo(args)
	case "stop":
		e.stopSearch()
	case "setoption":
		return e.handleSetOption(args)
	case "debug":
		return e.setDebug(len(args) > 0 && args[0] == "on")
	case "d":
		fmt.Fprint(e.out, e.pos.Display())
		fmt.Fprintln(e.out, "fen", e.pos.Fen())
	case "quit":
		e.stopSearch()
		e.quitting = true
	default:
		log.Debug().Str("command", cmd).Msg("ignoring-unknown-command")
	}
	return nil
}

func (e *Engine) identify() {
	name := "luzhin"
	if e.version != "" {
		name += " " + e.version
	}
	fmt.Fprintln(e.out, "id name "+name)
	fmt.Fprintln(e.out, "id author the luzhin authors")
	fmt.Fprintln(e.out, "option name Hash type spin default 256 min 16 max 16384")
	fmt.Fprintln(e.out, "option name Eval type combo default psqt var psqt var material")
	fmt.Fprintln(e.out, "uciok")
}

// newGame clears everything the previous game left behind: the position
// and the whole transposition table. Stale entries would otherwise leak
// plausible-looking moves into an unrelated game.
func (e *Engine) newGame() error {
	if e.searching() {
		return errSearchInProgress
	}
	e.pos = game.NewPosition()
	e.solver.SetPosition(e.pos)
	if e.hashMB > 0 {
		e.ttable.ResetToMegabytes(e.hashMB)
	} else {
		e.ttable.Reset(search.DefaultTTFraction)
	}
	return nil
}

func (e *Engine) handlePosition(args []string) error {
	if e.searching() {
		return errSearchInProgress
	}
	if len(args) == 0 {
		return errors.New("position needs startpos or fen")
	}
	var fen string
	rest := args[1:]
	switch args[0] {
	case "startpos":
		fen = game.StartposFEN
	case "fen":
		n := len(rest)
		for i, tok := range rest {
			if tok == "moves" {
				n = i
				break
			}
		}
		fen = strings.Join(rest[:n], " ")
		rest = rest[n:]
	default:
		return fmt.Errorf("unsupported position form %q", args[0])
	}
	pos, err := game.ParseFen(fen)
	if err != nil {
		return err
	}
	// Replaying the moves (rather than jumping to the final FEN) keeps
	// the hash history intact for repetition detection.
	if len(rest) > 0 && rest[0] == "moves" {
		for _, uciMove := range rest[1:] {
			m, err := pos.MoveFromUCI(uciMove)
			if err != nil {
				return fmt.Errorf("position moves: %w", err)
			}
			pos.MakeMove(m)
		}
	}
	e.pos = pos
	e.solver.SetPosition(pos)
	return nil
}

func (e *Engine) handleGo(args []string) error {
	var cfg search.SearchConfig
	var wtime, btime, winc, binc int64
	movestogo := int64(20)
	hasClock := false

	i := 0
	nextInt := func(flag string) (int64, error) {
		i++
		if i >= len(args) {
			return 0, fmt.Errorf("go %s needs a value", flag)
		}
		v, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("go %s: %w", flag, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("go %s: negative value", flag)
		}
		return v, nil
	}
	for ; i < len(args); i++ {
		var err error
		switch args[i] {
		case "depth":
			var d int64
			if d, err = nextInt("depth"); err == nil {
				cfg.MaxDepth = int(d)
			}
		case "movetime":
			cfg.MaxTimeMs, err = nextInt("movetime")
		case "nodes":
			var n int64
			if n, err = nextInt("nodes"); err == nil {
				cfg.MaxNodes = uint64(n)
			}
		case "infinite":
			cfg.Infinite = true
		case "wtime":
			wtime, err = nextInt("wtime")
			hasClock = true
		case "btime":
			btime, err = nextInt("btime")
			hasClock = true
		case "winc":
			winc, err = nextInt("winc")
		case "binc":
			binc, err = nextInt("binc")
		case "movestogo":
			movestogo, err = nextInt("movestogo")
		}
		if err != nil {
			return err
		}
	}

	if hasClock && cfg.MaxTimeMs == 0 && !cfg.Infinite {
		remaining, inc := wtime, winc
		if !e.pos.WhiteToMove() {
			remaining, inc = btime, binc
		}
		if movestogo < 1 {
			movestogo = 1
		}
		budget := remaining/movestogo + inc/2
		if budget < 50 {
			budget = 50
		}
		cfg.MaxTimeMs = budget
	}
	// A bare "go" falls back to the configured analysis depth, with the
	// configured move time as a ceiling.
	if !cfg.Infinite && cfg.MaxDepth == 0 && cfg.MaxTimeMs == 0 && cfg.MaxNodes == 0 {
		cfg.MaxDepth = e.cfg.DefaultDepth
		cfg.MaxTimeMs = int64(e.cfg.DefaultMoveTime)
	}
	return e.startSearch(cfg)
}

func (e *Engine) handleSetOption(args []string) error {
	if e.searching() {
		return errSearchInProgress
	}
	var name, value []string
	target := &name
	for _, tok := range args {
		switch tok {
		case "name":
			target = &name
			continue
		case "value":
			target = &value
			continue
		}
		*target = append(*target, tok)
	}
	if len(name) == 0 {
		return errors.New("setoption needs a name")
	}
	switch strings.ToLower(strings.Join(name, " ")) {
	case "hash":
		if len(value) == 0 {
			return errors.New("setoption Hash needs a value")
		}
		mb, err := strconv.Atoi(value[0])
		if err != nil {
			return fmt.Errorf("setoption Hash: %w", err)
		}
		e.hashMB = mb
		e.ttable.ResetToMegabytes(mb)
	case "eval":
		if len(value) == 0 {
			return errors.New("setoption Eval needs a value")
		}
		e.solver.SetEvaluator(eval.ForName(strings.ToLower(value[0])))
	default:
		return fmt.Errorf("unsupported option %q", strings.Join(name, " "))
	}
	return nil
}

// setDebug toggles the solver's variant tree dump on stderr.
func (e *Engine) setDebug(on bool) error {
	if e.searching() {
		return errSearchInProgress
	}
	e.debug = on
	if on {
		e.solver.SetLogStream(os.Stderr)
	} else {
		e.solver.SetLogStream(nil)
	}
	return nil
}

func (e *Engine) searching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

func (e *Engine) startSearch(cfg search.SearchConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errSearchInProgress
	}
	// The solver mutates the position it searches, so it gets a private
	// copy; "d" and "eval" keep reading e.pos while the search runs.
	e.solver.SetPosition(e.pos.Clone())
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done

	// The buffer outlasts the deepest possible search, so the solver's
	// non-blocking sends never drop a depth.
	results := make(chan search.SearchResult, search.MaxVariantLength)
	e.solver.SetResultChannel(results)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for r := range results {
			e.printInfo(r)
		}
	}()

	go func() {
		defer close(done)
		res, err := e.solver.Solve(ctx, cfg)
		close(results)
		<-printed
		if err != nil {
			e.errout(err)
		} else {
			e.printBestmove(res)
		}
		e.mu.Lock()
		e.cancel = nil
		e.done = nil
		e.solver.SetResultChannel(nil)
		e.mu.Unlock()
	}()
	return nil
}

// stopSearch cancels a running search and blocks until its bestmove has
// been written. A no-op when nothing is searching.
func (e *Engine) stopSearch() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) printInfo(r search.SearchResult) {
	var score string
	if search.IsMateScore(r.Score) {
		score = fmt.Sprintf("mate %d", search.MovesToMate(r.Score))
	} else {
		score = fmt.Sprintf("cp %d", r.Score)
	}
	nps := int64(float64(r.Nodes) / math.Max(r.Elapsed.Seconds(), 0.001))
	pv := strings.Join(lo.Map(r.PV, func(m dragontoothmg.Move, _ int) string {
		return m.String()
	}), " ")
	fmt.Fprintf(e.out, "info depth %d score %s nodes %d nps %d time %d pv %s\n",
		r.Depth, score, r.Nodes, nps, r.Elapsed.Milliseconds(), pv)
}

// printBestmove emits the final move. A terminal root has nothing to
// play; the protocol's null move stands in so GUIs don't hang.
func (e *Engine) printBestmove(r search.SearchResult) {
	if r.Move == 0 {
		fmt.Fprintln(e.out, "bestmove 0000")
		return
	}
	fmt.Fprintln(e.out, "bestmove "+r.Move.String())
}
