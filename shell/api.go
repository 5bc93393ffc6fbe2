package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/game"
	"github.com/luzhin-io/luzhin/pgnio"
	"github.com/luzhin-io/luzhin/search"
)

// Response is the printable outcome of a shell command. Handlers that
// already wrote their own output return nil.
type Response struct {
	message string
}

func msg(message string) *Response {
	return &Response{message: message}
}

func (sc *ShellController) statusDisplay() string {
	var sb strings.Builder
	sb.WriteString(sc.pos.Display())
	fmt.Fprintf(&sb, "fen: %v\n", sc.pos.Fen())
	side := "white"
	if !sc.pos.WhiteToMove() {
		side = "black"
	}
	fmt.Fprintf(&sb, "turn %v of %v, %v to move", sc.curTurnNum, len(sc.moves), side)
	if status := sc.pos.Status(); status.GameOver() {
		fmt.Fprintf(&sb, "\ngame over: %v %v", status, status.Result(sc.pos.WhiteToMove()))
	}
	return sb.String()
}

func (sc *ShellController) newGame(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	sc.startFen = game.StartposFEN
	sc.tags = nil
	sc.moves = nil
	if err := sc.setToTurn(0); err != nil {
		return nil, err
	}
	// Stale table entries would leak plausible-looking moves from the
	// previous game into this one.
	if sc.config.TTableMegabytes > 0 {
		sc.ttable.ResetToMegabytes(sc.config.TTableMegabytes)
	} else {
		sc.ttable.Reset(search.DefaultTTFraction)
	}
	sc.mu.Lock()
	sc.lastResult = nil
	sc.pvRoot = nil
	sc.mu.Unlock()
	return msg(sc.statusDisplay()), nil
}

// position mirrors the UCI position command: `position startpos
// [moves ...]` or `position fen <fen> [moves ...]`. It gets the raw
// line rather than a shellcmd because FEN fields look like options.
func (sc *ShellController) position(rest string) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if rest == "" {
		return nil, errors.New("position needs startpos or fen, like `position startpos moves e2e4`")
	}
	args := strings.Fields(rest)
	var fen string
	tail := args[1:]
	switch args[0] {
	case "startpos":
		fen = game.StartposFEN
	case "fen":
		n := len(tail)
		for i, tok := range tail {
			if tok == "moves" {
				n = i
				break
			}
		}
		fen = strings.Join(tail[:n], " ")
		tail = tail[n:]
	default:
		return nil, fmt.Errorf("unsupported position form %q", args[0])
	}
	pos, err := game.ParseFen(fen)
	if err != nil {
		return nil, err
	}
	var moves []dragontoothmg.Move
	if len(tail) > 0 && tail[0] == "moves" {
		for _, uciMove := range tail[1:] {
			m, err := pos.MoveFromUCI(uciMove)
			if err != nil {
				return nil, fmt.Errorf("position moves: %w", err)
			}
			moves = append(moves, m)
			pos.MakeMove(m)
		}
	}
	sc.startFen = fen
	sc.tags = nil
	sc.moves = moves
	sc.pos = pos
	sc.curTurnNum = len(moves)
	sc.curPlayList = nil
	return msg(sc.statusDisplay()), nil
}

func (sc *ShellController) load(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("load needs a PGN file path")
	}
	g, err := pgnio.ParsePGN(cmd.args[0])
	if err != nil {
		return nil, err
	}
	sc.startFen = g.StartFen
	sc.tags = g.Tags
	sc.moves = g.Moves
	if err := sc.setToTurn(0); err != nil {
		return nil, err
	}
	header := ""
	if white, black := g.Tag("White"), g.Tag("Black"); white != "" || black != "" {
		header = fmt.Sprintf("%v vs %v: ", white, black)
	}
	return msg(fmt.Sprintf("%vloaded %v plies; `next` steps through the game\n%v",
		header, len(g.Moves), sc.statusDisplay())), nil
}

func (sc *ShellController) show(cmd *shellcmd) (*Response, error) {
	return msg(sc.statusDisplay()), nil
}

func moveTableHeader() string {
	return "     Move      Coord     Static\n"
}

func moveTableRow(idx int, san, coord string, static int16) string {
	return fmt.Sprintf("%3d: %-10s%-10s%+6.2f", idx+1, san, coord, float64(static)/100)
}

// list shows every legal move with its one-ply static score, best
// first. The numbering feeds `play #n`.
func (sc *ShellController) list(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	evaluator := eval.ForName(sc.evaluatorName)
	type scoredMove struct {
		move   dragontoothmg.Move
		san    string
		static int16
	}
	legal := sc.pos.LegalMoves()
	if len(legal) == 0 {
		return msg("no legal moves: " + sc.pos.Status().String()), nil
	}
	rows := make([]scoredMove, 0, len(legal))
	for _, m := range legal {
		san, err := pgnio.SAN(sc.pos, m)
		if err != nil {
			return nil, err
		}
		undo := sc.pos.MakeMove(m)
		static := -evaluator.Evaluate(sc.pos)
		undo()
		rows = append(rows, scoredMove{move: m, san: san, static: static})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].static > rows[j].static })
	sc.curPlayList = lo.Map(rows, func(r scoredMove, _ int) dragontoothmg.Move { return r.move })

	var sb strings.Builder
	sb.WriteString(moveTableHeader())
	for i, row := range rows {
		sb.WriteString(moveTableRow(i, row.san, row.move.String(), row.static))
		sb.WriteByte('\n')
	}
	return msg(sb.String()), nil
}

func (sc *ShellController) play(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("play needs a move, like `play Nf3`, `play g1f3`, `play #1`, or `play best`")
	}
	token := cmd.args[0]
	var m dragontoothmg.Move
	switch {
	case strings.HasPrefix(token, "#"):
		playID, err := strconv.Atoi(token[1:])
		if err != nil {
			return nil, err
		}
		idx := playID - 1
		if idx < 0 || idx >= len(sc.curPlayList) {
			return nil, errors.New("play number is out of range; run `list` first")
		}
		m = sc.curPlayList[idx]
	case token == "best":
		sc.mu.Lock()
		lastResult, root := sc.lastResult, sc.pvRoot
		sc.mu.Unlock()
		if lastResult == nil {
			return nil, errNothingSearched
		}
		if root == nil || root.Fen() != sc.pos.Fen() {
			return nil, errors.New("the last search was for a different position")
		}
		if lastResult.Move == 0 {
			return nil, errors.New("the game is over; nothing to play")
		}
		m = lastResult.Move
	default:
		var err error
		m, err = sc.pos.MoveFromUCI(token)
		if err != nil {
			if m, err = pgnio.MoveFromSAN(sc.pos, token); err != nil {
				return nil, err
			}
		}
	}
	// Playing from the middle of the record starts a new variation and
	// drops the rest of the old one.
	sc.moves = append(sc.moves[:sc.curTurnNum], m)
	sc.pos.MakeMove(m)
	sc.curTurnNum++
	sc.curPlayList = nil
	return msg(sc.statusDisplay()), nil
}

func (sc *ShellController) next(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if err := sc.setToTurn(sc.curTurnNum + 1); err != nil {
		return nil, err
	}
	return msg(sc.statusDisplay()), nil
}

func (sc *ShellController) prev(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if err := sc.setToTurn(sc.curTurnNum - 1); err != nil {
		return nil, err
	}
	return msg(sc.statusDisplay()), nil
}

func (sc *ShellController) turn(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("turn needs a ply number, like `turn 12`")
	}
	t, err := strconv.Atoi(cmd.args[0])
	if err != nil {
		return nil, err
	}
	if err := sc.setToTurn(t); err != nil {
		return nil, err
	}
	return msg(sc.statusDisplay()), nil
}

func (sc *ShellController) goSearch(cmd *shellcmd) (*Response, error) {
	var cfg search.SearchConfig
	for opt, val := range cmd.options {
		switch opt {
		case "depth":
			d, err := strconv.Atoi(val)
			if err != nil {
				return nil, err
			}
			cfg.MaxDepth = d
		case "time":
			secs, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, err
			}
			cfg.MaxTimeMs = int64(secs * 1000)
		case "nodes":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, err
			}
			cfg.MaxNodes = n
		case "infinite":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, err
			}
			cfg.Infinite = b
		default:
			return nil, errors.New("option " + opt + " not recognized; see `help go`")
		}
	}
	if cfg.MaxDepth == 0 && cfg.MaxTimeMs == 0 && cfg.MaxNodes == 0 && !cfg.Infinite {
		cfg.MaxDepth = sc.curDepth
	}
	if err := sc.startSearch(cfg); err != nil {
		return nil, err
	}
	return msg("thinking (" + describeConfig(cfg) + "); `stop` interrupts"), nil
}

func describeConfig(cfg search.SearchConfig) string {
	var parts []string
	if cfg.Infinite {
		parts = append(parts, "infinite")
	}
	if cfg.MaxDepth > 0 {
		parts = append(parts, fmt.Sprintf("depth %d", cfg.MaxDepth))
	}
	if cfg.MaxTimeMs > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", float64(cfg.MaxTimeMs)/1000))
	}
	if cfg.MaxNodes > 0 {
		parts = append(parts, fmt.Sprintf("%d nodes", cfg.MaxNodes))
	}
	return strings.Join(parts, ", ")
}

func (sc *ShellController) startSearch(cfg search.SearchConfig) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.searchCancel != nil {
		return errBusySolving
	}

	// The solver mutates the position it searches, so it gets a private
	// copy; show and eval keep reading sc.pos while it runs. A second
	// pristine copy anchors PV display afterwards.
	root := sc.pos.Clone()
	sc.solver.SetPosition(root.Clone())
	sc.pvRoot = root

	ctx, cancel := context.WithCancel(context.Background())
	sc.searchCancel = cancel
	done := make(chan struct{})
	sc.searchDone = done
	ticker := time.NewTicker(10 * time.Second)
	sc.searchTicker = ticker

	// The buffer outlasts the deepest possible search, so the solver's
	// non-blocking sends never drop a depth.
	results := make(chan search.SearchResult, search.MaxVariantLength)
	sc.solver.SetResultChannel(results)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for r := range results {
			sc.showMessage(formatSearchLine(r))
		}
	}()

	go func() {
		start := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Info().Dur("elapsed", time.Since(start)).Msg("still-thinking")
			}
		}
	}()

	go func() {
		defer close(done)
		res, err := sc.solver.Solve(ctx, cfg)
		close(results)
		<-printed
		ticker.Stop()
		if err != nil {
			sc.showError(err)
		} else {
			sc.showMessage(formatFinal(res, root))
		}
		sc.mu.Lock()
		if err == nil {
			sc.lastResult = &res
		}
		sc.searchCancel = nil
		sc.searchDone = nil
		sc.searchTicker = nil
		sc.solver.SetResultChannel(nil)
		sc.mu.Unlock()
	}()
	return nil
}

// stopSearch cancels a running search and blocks until its final line
// has been printed. A no-op when nothing is searching.
func (sc *ShellController) stopSearch() {
	sc.mu.Lock()
	cancel, done := sc.searchCancel, sc.searchDone
	sc.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (sc *ShellController) stop(cmd *shellcmd) (*Response, error) {
	if !sc.solving() {
		return nil, errors.New("no search is running")
	}
	sc.stopSearch()
	return nil, nil
}

func scoreString(score int16) string {
	if search.IsMateScore(score) {
		return fmt.Sprintf("#%d", search.MovesToMate(score))
	}
	return fmt.Sprintf("%+.2f", float64(score)/100)
}

func formatSearchLine(r search.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "depth %2d  %8s  %12d nodes  %10v  pv",
		r.Depth, scoreString(r.Score), r.Nodes, r.Elapsed.Round(time.Millisecond))
	for _, m := range r.PV {
		sb.WriteString(" " + m.String())
	}
	return sb.String()
}

func formatFinal(res search.SearchResult, root *game.Position) string {
	if res.Move == 0 {
		return "game is over: " + res.Status.String()
	}
	san := res.Move.String()
	if s, err := pgnio.SAN(root, res.Move); err == nil {
		san = s
	}
	return fmt.Sprintf("best move %v (%v), score %v at depth %v; %v nodes in %v",
		san, res.Move.String(), scoreString(res.Score), res.Depth, res.Nodes,
		res.Elapsed.Round(time.Millisecond))
}

func (sc *ShellController) evaluate(cmd *shellcmd) (*Response, error) {
	side := "white"
	if !sc.pos.WhiteToMove() {
		side = "black"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "static evaluation from %v's point of view:\n", side)
	for _, name := range []string{"psqt", "material"} {
		score := eval.ForName(name).Evaluate(sc.pos)
		fmt.Fprintf(&sb, "  %-9v %v\n", name, scoreString(score))
	}
	return msg(strings.TrimRight(sb.String(), "\n")), nil
}

func (sc *ShellController) perft(cmd *shellcmd) (*Response, error) {
	if sc.solving() {
		return nil, errBusySolving
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("perft needs a depth, like `perft 5` or `perft 5 divide`")
	}
	depth, err := strconv.Atoi(cmd.args[0])
	if err != nil {
		return nil, err
	}
	if depth < 1 || depth > 7 {
		return nil, errors.New("perft depth must be between 1 and 7")
	}
	var sb strings.Builder
	start := time.Now()
	var nodes uint64
	if len(cmd.args) > 1 && cmd.args[1] == "divide" {
		divide := sc.pos.PerftDivide(depth)
		moves := lo.Keys(divide)
		sort.Slice(moves, func(i, j int) bool { return moves[i].String() < moves[j].String() })
		for _, m := range moves {
			fmt.Fprintf(&sb, "%v: %v\n", m.String(), divide[m])
			nodes += divide[m]
		}
	} else {
		nodes = sc.pos.Perft(depth)
	}
	fmt.Fprintf(&sb, "perft(%v) = %v in %v", depth, nodes, time.Since(start).Round(time.Millisecond))
	return msg(sb.String()), nil
}

func (sc *ShellController) export(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return nil, errors.New("export needs a file path, like `export mygame.pgn`")
	}
	scratch, err := game.ParseFen(sc.startFen)
	if err != nil {
		return nil, err
	}
	enc := pgnio.NewEncoder(scratch)
	hasEvent := false
	loadedResult := ""
	for _, tag := range sc.tags {
		if tag.Name == "Result" {
			loadedResult = tag.Value
			continue
		}
		if tag.Name == "Event" {
			hasEvent = true
		}
		enc.AddTag(tag.Name, tag.Value)
	}
	if !hasEvent {
		enc.AddTag("Event", "luzhin analysis")
	}
	for _, m := range sc.moves {
		enc.AddMove(m)
		scratch.MakeMove(m)
	}
	if status := scratch.Status(); status.GameOver() {
		enc.SetResult(status.Result(scratch.WhiteToMove()))
	} else if loadedResult != "" {
		enc.SetResult(loadedResult)
	}
	out, err := enc.Encode()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cmd.args[0], []byte(out), 0o644); err != nil {
		return nil, err
	}
	return msg(fmt.Sprintf("wrote %v plies to %v", len(sc.moves), cmd.args[0])), nil
}

func (sc *ShellController) set(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return msg(fmt.Sprintf("depth %v\nevaluator %v", sc.curDepth, sc.evaluatorName)), nil
	}
	if len(cmd.args) < 2 {
		return nil, errors.New("usage: set <option> <value>")
	}
	if sc.solving() {
		return nil, errBusySolving
	}
	opt, val := cmd.args[0], cmd.args[1]
	switch opt {
	case "depth":
		d, err := strconv.Atoi(val)
		if err != nil {
			return nil, err
		}
		if d < 1 || d >= search.MaxVariantLength {
			return nil, fmt.Errorf("depth must be between 1 and %v", search.MaxVariantLength-1)
		}
		sc.curDepth = d
	case "evaluator":
		if val != "psqt" && val != "material" {
			return nil, errors.New("evaluator must be psqt or material")
		}
		sc.evaluatorName = val
		sc.solver.SetEvaluator(eval.ForName(val))
	case "hash":
		mb, err := strconv.Atoi(val)
		if err != nil {
			return nil, err
		}
		if mb < 1 {
			return nil, errors.New("hash size must be at least 1 megabyte")
		}
		sc.ttable.ResetToMegabytes(mb)
	default:
		return nil, errors.New("option " + opt + " not recognized; choices are depth, evaluator, hash")
	}
	log.Debug().Str("option", opt).Str("value", val).Msg("set-option")
	return msg("set " + opt + " to " + val), nil
}

func modeName(mode Mode) string {
	switch mode {
	case StandardMode:
		return "standard"
	case SearchDebugMode:
		return "searchdebug"
	}
	return "invalid"
}

func (sc *ShellController) setMode(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return msg("current mode: " + modeName(sc.curMode)), nil
	}
	mode, err := modeFromStr(cmd.args[0])
	if err != nil {
		return nil, err
	}
	if mode == SearchDebugMode {
		if err := sc.enterSearchDebug(); err != nil {
			return nil, err
		}
	}
	sc.curMode = mode
	return msg("setting current mode to " + modeName(mode)), nil
}

func (sc *ShellController) help(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return usage(modeName(sc.curMode))
	}
	return usageTopic(cmd.args[0])
}
