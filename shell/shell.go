// Package shell is the interactive analysis console: position setup,
// move navigation, asynchronous engine searches, and self-play matches
// from one readline loop.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog/log"

	"github.com/luzhin-io/luzhin/config"
	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/game"
	"github.com/luzhin-io/luzhin/gamestore"
	"github.com/luzhin-io/luzhin/pgnio"
	"github.com/luzhin-io/luzhin/search"
)

var (
	errNoData            = errors.New("no data in command")
	errWrongOptionSyntax = errors.New("wrong format; all options need a value")
	errBusySolving       = errors.New("still thinking; `stop` the search first")
	errNothingSearched   = errors.New("nothing has been searched yet; run `go` first")
	errQuitting          = errors.New("sending quit signal")
)

type Mode int

const (
	StandardMode Mode = iota
	SearchDebugMode
	InvalidMode
)

func modeFromStr(mode string) (Mode, error) {
	mode = strings.TrimSpace(mode)
	switch mode {
	case "standard":
		return StandardMode, nil
	case "searchdebug":
		return SearchDebugMode, nil
	}
	return InvalidMode, errors.New("mode " + mode + " is not a valid choice")
}

// shellcmd is one parsed console line: the command word, its positional
// arguments, and -key value options.
type shellcmd struct {
	cmd     string
	args    []string
	options map[string]string
}

func extractFields(line string) (*shellcmd, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := fields[0]
	var args []string
	options := map[string]string{}
	pendingOption := ""
	hasPending := false
	for _, token := range fields[1:] {
		if strings.HasPrefix(token, "-") {
			if hasPending {
				return nil, errWrongOptionSyntax
			}
			pendingOption = token[1:]
			hasPending = true
			continue
		}
		if hasPending {
			options[pendingOption] = token
			hasPending = false
		} else {
			args = append(args, token)
		}
	}
	if hasPending {
		return nil, errWrongOptionSyntax
	}
	return &shellcmd{cmd: cmd, args: args, options: options}, nil
}

type ShellController struct {
	l       *readline.Instance
	config  *config.Config
	version string

	curMode Mode

	// The analysis game: a start position plus the move list, with
	// curTurnNum plies currently applied to pos.
	pos        *game.Position
	startFen   string
	tags       []pgnio.Tag
	moves      []dragontoothmg.Move
	curTurnNum int

	// curPlayList holds the moves last shown by `list`, so `play #3`
	// can refer to them.
	curPlayList []dragontoothmg.Move

	solver        *search.Solver
	ttable        *search.TranspositionTable
	evaluatorName string
	curDepth      int

	// mu guards the async state shared with search and match
	// goroutines.
	mu           sync.Mutex
	searchCancel context.CancelFunc
	searchDone   chan struct{}
	searchTicker *time.Ticker
	lastResult   *search.SearchResult
	pvRoot       *game.Position

	matchCancel  context.CancelFunc
	matchDone    chan struct{}
	matchLogFile *os.File
	matchArchive *gamestore.Store

	// Search-debug mode walks the last principal variation.
	pvPos   *game.Position
	pvIndex int
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

func completer() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("new"),
		readline.PcItem("position",
			readline.PcItem("startpos"),
			readline.PcItem("fen"),
		),
		readline.PcItem("load"),
		readline.PcItem("show"),
		readline.PcItem("list"),
		readline.PcItem("play"),
		readline.PcItem("next"),
		readline.PcItem("prev"),
		readline.PcItem("turn"),
		readline.PcItem("go"),
		readline.PcItem("stop"),
		readline.PcItem("eval"),
		readline.PcItem("perft"),
		readline.PcItem("autoplay",
			readline.PcItem("stop"),
		),
		readline.PcItem("export"),
		readline.PcItem("set",
			readline.PcItem("depth"),
			readline.PcItem("evaluator"),
		),
		readline.PcItem("mode",
			readline.PcItem("standard"),
			readline.PcItem("searchdebug"),
		),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func NewShellController(cfg *config.Config, version string) *ShellController {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[31mluzhin>\033[0m ",
		HistoryFile:     "/tmp/luzhin-readline.tmp",
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",
		AutoComplete:    completer(),

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}

	pos := game.NewPosition()
	solver := new(search.Solver)
	if err := solver.Init(pos, eval.ForName(cfg.DefaultEvaluator)); err != nil {
		panic(err)
	}
	ttable := &search.TranspositionTable{}
	ttable.SetSingleThreadedMode()
	if cfg.TTableMegabytes > 0 {
		ttable.ResetToMegabytes(cfg.TTableMegabytes)
	} else {
		ttable.Reset(search.DefaultTTFraction)
	}
	solver.SetTranspositionTable(ttable)

	return &ShellController{
		l:             l,
		config:        cfg,
		version:       version,
		pos:           pos,
		startFen:      game.StartposFEN,
		solver:        solver,
		ttable:        ttable,
		evaluatorName: cfg.DefaultEvaluator,
		curDepth:      cfg.DefaultDepth,
	}
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.l.Stderr())
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

// setToTurn replays the move list from the start position up to the
// given ply, keeping the hash history intact for repetition detection.
func (sc *ShellController) setToTurn(turnnum int) error {
	if turnnum < 0 || turnnum > len(sc.moves) {
		return errors.New("turn " + strconv.Itoa(turnnum) + " is out of range")
	}
	pos, err := game.ParseFen(sc.startFen)
	if err != nil {
		return err
	}
	for _, m := range sc.moves[:turnnum] {
		pos.MakeMove(m)
	}
	sc.pos = pos
	sc.curTurnNum = turnnum
	sc.curPlayList = nil
	log.Debug().Int("turn", turnnum).Msg("set-to-turn")
	return nil
}

func (sc *ShellController) solving() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.searchCancel != nil
}

func (sc *ShellController) autoplaying() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.matchCancel != nil
}

func (sc *ShellController) standardModeSwitch(line string, sig chan os.Signal) (*Response, error) {
	// The position command takes a raw FEN, whose "-" fields would be
	// eaten by the option parser.
	if line == "position" || strings.HasPrefix(line, "position ") {
		return sc.position(strings.TrimSpace(strings.TrimPrefix(line, "position")))
	}
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	switch cmd.cmd {
	case "new":
		return sc.newGame(cmd)
	case "load":
		return sc.load(cmd)
	case "show", "s":
		return sc.show(cmd)
	case "list", "gen":
		return sc.list(cmd)
	case "play", "add":
		return sc.play(cmd)
	case "next", "n":
		return sc.next(cmd)
	case "prev", "p":
		return sc.prev(cmd)
	case "turn":
		return sc.turn(cmd)
	case "go":
		return sc.goSearch(cmd)
	case "stop":
		return sc.stop(cmd)
	case "eval":
		return sc.evaluate(cmd)
	case "perft":
		return sc.perft(cmd)
	case "autoplay":
		return sc.handleAutoplay(cmd.args, cmd.options)
	case "export":
		return sc.export(cmd)
	case "set":
		return sc.set(cmd)
	case "mode":
		return sc.setMode(cmd)
	case "help":
		return sc.help(cmd)
	case "exit", "quit", "bye":
		sig <- syscall.SIGINT
		return nil, errQuitting
	default:
		log.Debug().Msgf("you said: %v", strconv.Quote(line))
		return nil, nil
	}
}

func (sc *ShellController) dispatch(line string, sig chan os.Signal) (*Response, error) {
	if sc.curMode == SearchDebugMode {
		return sc.searchDebugModeSwitch(line, sig)
	}
	return sc.standardModeSwitch(line, sig)
}

// Loop reads console lines until exit, EOF, or an interrupt on an
// empty line.
func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		resp, err := sc.dispatch(line, sig)
		if errors.Is(err, errQuitting) {
			break
		}
		if err != nil {
			sc.showError(err)
		} else if resp != nil {
			sc.showMessage(resp.message)
		}
	}
	log.Debug().Msg("exiting-readline-loop")
}

// Execute runs a single command line, for one-shot invocations like
// `luzhin "perft 5"`.
func (sc *ShellController) Execute(sig chan os.Signal, line string) {
	resp, err := sc.dispatch(strings.TrimSpace(line), sig)
	if err != nil && !errors.Is(err, errQuitting) {
		sc.showError(err)
	} else if resp != nil {
		sc.showMessage(resp.message)
	}
}

// Cleanup stops whatever is still running so the process can exit.
func (sc *ShellController) Cleanup() {
	sc.stopSearch()
	sc.stopMatch()
}
